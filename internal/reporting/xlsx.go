package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ocrlab/ocrlab/internal/history"
)

const (
	summarySheet = "Summary"
	samplesSheet = "Samples"
)

// WriteXLSX writes rec as a workbook with a Summary sheet and, when the run
// completed, a Samples sheet with one row per sample.
func WriteXLSX(w io.Writer, rec *history.Record) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("xlsx summary sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}

	rows := [][]any{
		{"Run ID", rec.ID},
		{"Dataset", rec.Dataset},
		{"Engine", rec.Engine},
		{"Languages", strings.Join(rec.Languages, ", ")},
		{"GPU", rec.GPU},
		{"Status", string(rec.Status)},
		{"Started", rec.StartTime.UTC().Format("2006-01-02 15:04:05")},
		{"Duration (s)", runSeconds(rec)},
	}
	if rec.Error != "" {
		rows = append(rows, []any{"Error", rec.Error})
	}
	if r := rec.Results; r != nil {
		rows = append(rows,
			[]any{"Total samples", r.TotalSamples},
			[]any{"Correct predictions", r.CorrectPredictions},
			[]any{"Accuracy (%)", r.Accuracy},
			[]any{"Mean CER", r.MeanCER},
			[]any{"Rating", InterpretAccuracy(r.Accuracy)},
		)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1) //nolint:errcheck
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx summary row: %w", err)
		}
	}
	_ = f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(rows)), bold)
	_ = f.SetColWidth(summarySheet, "A", "A", 22)
	_ = f.SetColWidth(summarySheet, "B", "B", 48)

	if rec.Results != nil {
		if err := writeSamplesSheet(f, rec, bold); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func writeSamplesSheet(f *excelize.File, rec *history.Record, headerStyle int) error {
	if _, err := f.NewSheet(samplesSheet); err != nil {
		return fmt.Errorf("xlsx samples sheet: %w", err)
	}
	headers := []any{"Filename", "Ground Truth", "Predicted", "Correct", "Confidence", "CER"}
	if err := f.SetSheetRow(samplesSheet, "A1", &headers); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}
	_ = f.SetCellStyle(samplesSheet, "A1", "F1", headerStyle)

	for i, d := range rec.Results.Details {
		cell, _ := excelize.CoordinatesToCellName(1, i+2) //nolint:errcheck
		row := []any{d.Filename, d.GroundTruth, d.Predicted, d.Correct, d.Confidence, d.CER}
		if err := f.SetSheetRow(samplesSheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx sample row: %w", err)
		}
	}

	_ = f.SetColWidth(samplesSheet, "A", "A", 24)
	_ = f.SetColWidth(samplesSheet, "B", "C", 40)
	_ = f.SetColWidth(samplesSheet, "D", "F", 12)
	return nil
}
