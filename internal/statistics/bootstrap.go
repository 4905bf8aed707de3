// Package statistics estimates how much an accuracy figure can be trusted
// given the number of samples behind it.
package statistics

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/ocrlab/ocrlab/internal/models"
)

// ConfidenceInterval holds the result of a bootstrap confidence interval computation.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NumBootstraps   int     `json:"num_bootstraps"`
}

// Width is Upper - Lower.
func (ci ConfidenceInterval) Width() float64 { return ci.Upper - ci.Lower }

// DefaultBootstrapIterations is the number of bootstrap resamples.
const DefaultBootstrapIterations = 10000

// accuracySeed keeps reports of the same run identical.
const accuracySeed = 20240601

// BootstrapCI computes a percentile bootstrap confidence interval for the mean
// of scores. confidenceLevel should be in (0, 1), e.g. 0.95. With fewer than
// two scores the interval collapses to the mean.
func BootstrapCI(scores []float64, confidenceLevel float64, seed uint64) ConfidenceInterval {
	n := len(scores)
	m := mean(scores)
	if n < 2 {
		return ConfidenceInterval{Lower: m, Upper: m, Mean: m, ConfidenceLevel: confidenceLevel}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	iters := DefaultBootstrapIterations

	bootMeans := make([]float64, iters)
	sample := make([]float64, n)
	for i := range iters {
		for j := range n {
			sample[j] = scores[rng.IntN(n)]
		}
		bootMeans[i] = mean(sample)
	}
	sort.Float64s(bootMeans)

	alpha := 1.0 - confidenceLevel
	loIdx := int(math.Floor(alpha / 2.0 * float64(iters)))
	hiIdx := min(int(math.Floor((1.0-alpha/2.0)*float64(iters))), iters-1)

	return ConfidenceInterval{
		Lower:           bootMeans[loIdx],
		Upper:           bootMeans[hiIdx],
		Mean:            m,
		ConfidenceLevel: confidenceLevel,
		NumBootstraps:   iters,
	}
}

// AccuracyCI returns a confidence interval for the exact-match accuracy of
// details, in percent (0-100).
func AccuracyCI(details []models.SampleResult, confidenceLevel float64) ConfidenceInterval {
	hits := make([]float64, len(details))
	for i, d := range details {
		if d.Correct {
			hits[i] = 100
		}
	}
	return BootstrapCI(hits, confidenceLevel, accuracySeed)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
