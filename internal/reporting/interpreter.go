package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/ocrlab/ocrlab/internal/history"
	"github.com/ocrlab/ocrlab/internal/models"
	"github.com/ocrlab/ocrlab/internal/statistics"
)

// InterpretAccuracy returns a plain-language label for an accuracy
// percentage (0-100).
func InterpretAccuracy(pct float64) string {
	switch {
	case pct > 90:
		return "Excellent (>90%)"
	case pct >= 70:
		return "Good (70-90%)"
	case pct >= 50:
		return "Needs Work (50-70%)"
	default:
		return "Poor (<50%)"
	}
}

// InterpretCER explains a mean character error rate.
func InterpretCER(cer float64) string {
	switch {
	case cer == 0:
		return "exact"
	case cer <= 0.05:
		return "minor character errors"
	case cer <= 0.2:
		return "noticeable character errors"
	default:
		return "mostly unreadable"
	}
}

// FormatSummaryReport produces a plain-language report for a run.
func FormatSummaryReport(rec *history.Record) string {
	var b strings.Builder

	b.WriteString("=== Interpretation ===\n\n")
	if rec.Status == models.JobFailed {
		fmt.Fprintf(&b, "Run failed: %s\n", rec.Error)
		return b.String()
	}
	r := rec.Results
	if r == nil {
		b.WriteString("No results.\n")
		return b.String()
	}

	duration := time.Duration(runSeconds(rec) * float64(time.Second)).Round(time.Millisecond)
	fmt.Fprintf(&b, "Accuracy:  %.2f%% - %s\n", r.Accuracy, InterpretAccuracy(r.Accuracy))
	if len(r.Details) >= 2 {
		ci := statistics.AccuracyCI(r.Details, 0.95)
		fmt.Fprintf(&b, "           95%% CI %.1f%% to %.1f%% over %d samples\n", ci.Lower, ci.Upper, len(r.Details))
	}
	fmt.Fprintf(&b, "Mean CER:  %.4f - %s\n", r.MeanCER, InterpretCER(r.MeanCER))
	fmt.Fprintf(&b, "Samples:   %d correct out of %d\n", r.CorrectPredictions, r.TotalSamples)
	fmt.Fprintf(&b, "Duration:  %v\n", duration)

	var misses []models.SampleResult
	for _, d := range r.Details {
		if !d.Correct {
			misses = append(misses, d)
		}
	}
	if len(misses) > 0 {
		b.WriteString("\nMismatches:\n")
		for _, d := range misses {
			fmt.Fprintf(&b, "  ✗ %s: expected %q, got %q\n", d.Filename, d.GroundTruth, d.Predicted)
		}
	}
	return b.String()
}
