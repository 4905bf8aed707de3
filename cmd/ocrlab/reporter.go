package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/ocrlab/ocrlab/internal/evaluation"
	"github.com/ocrlab/ocrlab/internal/history"
	"github.com/ocrlab/ocrlab/internal/models"
	"github.com/ocrlab/ocrlab/internal/reporting"
)

// formatDuration formats a duration in a consistent, human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(10 * time.Millisecond).String()
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

// truncate shortens s to a display width of maxWidth, ending in "…".
func truncate(s string, maxWidth int) string {
	return runewidth.Truncate(s, maxWidth, "…")
}

// progressListener prints one line per sample. With verbose set it also
// prints the prediction outcome and timing.
func progressListener(w io.Writer, verbose bool) evaluation.ProgressListener {
	return func(event evaluation.ProgressEvent) {
		switch event.EventType {
		case evaluation.EventRunStart:
			fmt.Fprintf(w, "Evaluating %d sample(s) with %v...\n\n", event.TotalSamples, event.Details["engine"]) //nolint:errcheck
		case evaluation.EventSampleComplete:
			icon := "✓"
			if !event.Correct {
				icon = "✗"
			}
			if verbose {
				fmt.Fprintf(w, "%s [%d/%d] %s (%s)\n", icon, event.SampleNum, event.TotalSamples, //nolint:errcheck
					event.Filename, formatDuration(time.Duration(event.DurationMs)*time.Millisecond))
			} else {
				fmt.Fprintf(w, "%s [%d/%d] %s\n", icon, event.SampleNum, event.TotalSamples, event.Filename) //nolint:errcheck
			}
		case evaluation.EventRunFailed:
			fmt.Fprintf(w, "\n❌ %s\n", event.Message) //nolint:errcheck
		}
	}
}

// formatSummary renders the results table for rec.
func formatSummary(rec *history.Record) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", 51) + "\n")
	b.WriteString(" OCR EVALUATION RESULTS\n")
	b.WriteString(strings.Repeat("=", 51) + "\n\n")

	b.WriteString(fmt.Sprintf("Run:         %s\n", rec.ID))
	b.WriteString(fmt.Sprintf("Dataset:     %s\n", rec.Dataset))
	b.WriteString(fmt.Sprintf("Engine:      %s\n", rec.Engine))
	b.WriteString(fmt.Sprintf("Languages:   %s\n", strings.Join(rec.Languages, ", ")))
	b.WriteString(fmt.Sprintf("Status:      %s\n", rec.Status))
	if !rec.EndTime.IsZero() {
		b.WriteString(fmt.Sprintf("Duration:    %s\n", formatDuration(rec.EndTime.Sub(rec.StartTime))))
	}
	if rec.Status == models.JobFailed {
		b.WriteString(fmt.Sprintf("Error:       %s\n", rec.Error))
		return b.String()
	}

	res := rec.Results
	if res == nil {
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Accuracy:    %.2f%% (%s)\n", res.Accuracy, reporting.InterpretAccuracy(res.Accuracy)))
	b.WriteString(fmt.Sprintf("Correct:     %d/%d\n", res.CorrectPredictions, res.TotalSamples))
	b.WriteString(fmt.Sprintf("Mean CER:    %.4f\n", res.MeanCER))

	if len(res.Details) > 0 {
		b.WriteString("\n")
		b.WriteString(formatSampleTable(res.Details))
	}
	return b.String()
}

const (
	maxNameWidth  = 40
	colText       = 28
	colConfidence = 10
)

func formatSampleTable(details []models.SampleResult) string {
	nameWidth := len("File")
	for _, d := range details {
		if sw := runewidth.StringWidth(d.Filename); sw > nameWidth {
			nameWidth = sw
		}
	}
	nameWidth = min(nameWidth, maxNameWidth)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("   %s  %s  %s  %s\n",
		padRight("File", nameWidth),
		padRight("Ground truth", colText),
		padRight("Predicted", colText),
		"Confidence"))
	b.WriteString(strings.Repeat("─", nameWidth+2*colText+colConfidence+9) + "\n")
	for _, d := range details {
		icon := "✓"
		if !d.Correct {
			icon = "✗"
		}
		b.WriteString(fmt.Sprintf("%s  %s  %s  %s  %.2f\n",
			icon,
			padRight(truncate(d.Filename, nameWidth), nameWidth),
			padRight(truncate(d.GroundTruth, colText), colText),
			padRight(truncate(d.Predicted, colText), colText),
			d.Confidence))
	}
	return b.String()
}

// formatRunList renders one row per stored run.
func formatRunList(runs []history.Summary) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s  %s  %s  %s  %s  %s\n",
		padRight("Run", 36), padRight("Started", 19), padRight("Dataset", 24),
		padRight("Engine", 10), padRight("Status", 9), "Accuracy"))
	b.WriteString(strings.Repeat("─", 118) + "\n")
	for _, r := range runs {
		acc := "-"
		if r.Status == models.JobCompleted {
			acc = fmt.Sprintf("%.2f%%", r.Accuracy)
		}
		b.WriteString(fmt.Sprintf("%s  %s  %s  %s  %s  %s\n",
			padRight(r.ID, 36),
			r.StartTime.Local().Format("2006-01-02 15:04:05"),
			padRight(truncate(filepath.Base(r.Dataset), 24), 24),
			padRight(r.Engine, 10),
			padRight(string(r.Status), 9),
			acc))
	}
	return b.String()
}
