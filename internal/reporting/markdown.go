package reporting

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ocrlab/ocrlab/internal/history"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ", "\r", "")

// Markdown renders rec as a GitHub-flavored Markdown report.
func Markdown(rec *history.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# OCR evaluation: %s\n\n", SuiteName(rec))
	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(k, v string) { fmt.Fprintf(&b, "| %s | %s |\n", k, cellEscaper.Replace(v)) }
	row("Run ID", rec.ID)
	row("Engine", rec.Engine)
	row("Languages", strings.Join(rec.Languages, ", "))
	row("Status", string(rec.Status))
	row("Started", rec.StartTime.UTC().Format(time.RFC3339))
	row("Duration", fmt.Sprintf("%.1fs", runSeconds(rec)))
	if rec.Error != "" {
		row("Error", rec.Error)
	}

	r := rec.Results
	if r == nil {
		return b.String()
	}
	row("Accuracy", fmt.Sprintf("%.2f%% (%s)", r.Accuracy, InterpretAccuracy(r.Accuracy)))
	row("Correct", fmt.Sprintf("%d / %d", r.CorrectPredictions, r.TotalSamples))
	row("Mean CER", fmt.Sprintf("%.4f (%s)", r.MeanCER, InterpretCER(r.MeanCER)))

	if len(r.Details) == 0 {
		return b.String()
	}
	b.WriteString("\n## Samples\n\n")
	b.WriteString("| # | File | Ground truth | Predicted | Match | Confidence | CER |\n")
	b.WriteString("|--:|---|---|---|:-:|--:|--:|\n")
	for i, d := range r.Details {
		mark := "✗"
		if d.Correct {
			mark = "✓"
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %.2f | %.4f |\n", i+1,
			cellEscaper.Replace(d.Filename), cellEscaper.Replace(d.GroundTruth),
			cellEscaper.Replace(d.Predicted), mark, d.Confidence, d.CER)
	}
	return b.String()
}

// HTML renders the Markdown report as a standalone HTML page.
func HTML(rec *history.Record) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(rec)), &body); err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>OCR evaluation %s</title>\n", html.EscapeString(rec.ID))
	out.WriteString("<style>body{font-family:sans-serif;margin:2rem}table{border-collapse:collapse}" +
		"td,th{border:1px solid #ccc;padding:4px 8px}</style>\n</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}
