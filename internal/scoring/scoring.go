// Package scoring compares predicted text with ground truth.
package scoring

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"github.com/ocrlab/ocrlab/internal/models"
)

// Normalize trims surrounding whitespace and lower-cases s. Inner whitespace
// is left alone.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Match reports whether predicted equals truth after normalization.
func Match(predicted, truth string) bool {
	return Normalize(predicted) == Normalize(truth)
}

// CER is the character error rate of predicted against truth: the edit
// distance between the normalized strings over the rune length of the
// normalized truth. An empty truth scores 0 against an empty prediction and
// 1 otherwise.
func CER(predicted, truth string) float64 {
	p, t := Normalize(predicted), Normalize(truth)
	n := utf8.RuneCountInString(t)
	if n == 0 {
		if p == "" {
			return 0
		}
		return 1
	}
	return float64(levenshtein.Distance(p, t, nil)) / float64(n)
}

// Summarize aggregates per-sample results. Details keep their order and are
// never nil.
func Summarize(details []models.SampleResult) *models.Results {
	res := &models.Results{
		TotalSamples: len(details),
		Details:      make([]models.SampleResult, len(details)),
	}
	copy(res.Details, details)

	var cerSum float64
	for _, d := range details {
		if d.Correct {
			res.CorrectPredictions++
		}
		cerSum += d.CER
	}
	if res.TotalSamples > 0 {
		res.Accuracy = Round2(100 * float64(res.CorrectPredictions) / float64(res.TotalSamples))
		res.MeanCER = math.Round(cerSum/float64(res.TotalSamples)*10000) / 10000
	}
	return res
}

// Round2 rounds x to two decimal places.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
