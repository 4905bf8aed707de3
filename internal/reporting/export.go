package reporting

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ocrlab/ocrlab/internal/history"
)

// Formats lists the export formats accepted by Export.
var Formats = []string{"json", "xlsx", "junit", "md", "html"}

// ExportFormat returns the MIME type and file extension for format.
func ExportFormat(format string) (contentType, ext string, ok bool) {
	switch format {
	case "json":
		return "application/json", ".json", true
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ".xlsx", true
	case "junit":
		return "application/xml", ".xml", true
	case "md":
		return "text/markdown; charset=utf-8", ".md", true
	case "html":
		return "text/html; charset=utf-8", ".html", true
	}
	return "", "", false
}

// ExportFilename is the suggested download name for rec in format.
func ExportFilename(rec *history.Record, format string) string {
	_, ext, _ := ExportFormat(format)
	return "ocrlab-" + rec.ID + ext
}

// Export writes rec to w in format.
func Export(w io.Writer, rec *history.Record, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case "xlsx":
		return WriteXLSX(w, rec)
	case "junit":
		return WriteJUnit(w, rec)
	case "md":
		_, err := io.WriteString(w, Markdown(rec))
		return err
	case "html":
		page, err := HTML(rec)
		if err != nil {
			return err
		}
		_, err = w.Write(page)
		return err
	}
	return fmt.Errorf("unsupported export format %q", format)
}
