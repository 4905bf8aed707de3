package statistics

import (
	"math"
	"testing"

	"github.com/ocrlab/ocrlab/internal/models"
)

func TestBootstrapCI_EmptyScores(t *testing.T) {
	ci := BootstrapCI(nil, 0.95, 1)
	if ci.Mean != 0.0 || ci.Lower != 0.0 || ci.Upper != 0.0 {
		t.Errorf("expected zero CI for empty input, got %+v", ci)
	}
	if ci.NumBootstraps != 0 {
		t.Errorf("expected 0 bootstraps for empty input, got %d", ci.NumBootstraps)
	}
}

func TestBootstrapCI_SingleValue(t *testing.T) {
	ci := BootstrapCI([]float64{75}, 0.95, 1)
	if ci.Mean != 75 || ci.Lower != 75 || ci.Upper != 75 {
		t.Errorf("expected degenerate CI for single value, got %+v", ci)
	}
}

func TestBootstrapCI_IdenticalValues(t *testing.T) {
	ci := BootstrapCI([]float64{100, 100, 100, 100}, 0.95, 42)
	if math.Abs(ci.Lower-100) > 1e-9 || math.Abs(ci.Upper-100) > 1e-9 {
		t.Errorf("expected CI [100, 100] for identical values, got [%f, %f]", ci.Lower, ci.Upper)
	}
}

func TestBootstrapCI_KnownDistribution(t *testing.T) {
	scores := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	ci := BootstrapCI(scores, 0.95, 42)

	if math.Abs(ci.Mean-0.55) > 1e-9 {
		t.Errorf("expected mean 0.55, got %f", ci.Mean)
	}
	if ci.Lower >= ci.Mean || ci.Upper <= ci.Mean {
		t.Errorf("CI [%f, %f] should bracket mean %f", ci.Lower, ci.Upper, ci.Mean)
	}
	if ci.Lower < 0.1 || ci.Upper > 1.0 {
		t.Errorf("CI should stay within the data range, got [%f, %f]", ci.Lower, ci.Upper)
	}
	if ci.NumBootstraps != DefaultBootstrapIterations {
		t.Errorf("expected %d bootstraps, got %d", DefaultBootstrapIterations, ci.NumBootstraps)
	}
}

func TestBootstrapCI_SeedIsReproducible(t *testing.T) {
	scores := []float64{0, 100, 100, 0, 100}
	a := BootstrapCI(scores, 0.95, 7)
	b := BootstrapCI(scores, 0.95, 7)
	if a != b {
		t.Errorf("same seed gave %+v and %+v", a, b)
	}
}

func samples(correct, total int) []models.SampleResult {
	out := make([]models.SampleResult, total)
	for i := range out {
		out[i].Correct = i < correct
	}
	return out
}

func TestAccuracyCI(t *testing.T) {
	ci := AccuracyCI(samples(8, 10), 0.95)
	if math.Abs(ci.Mean-80) > 1e-9 {
		t.Errorf("Mean = %f, want 80", ci.Mean)
	}
	if ci.Lower > 80 || ci.Upper < 80 || ci.Lower < 0 || ci.Upper > 100 {
		t.Errorf("CI = [%f, %f]", ci.Lower, ci.Upper)
	}
}

func TestAccuracyCI_NarrowerWithMoreSamples(t *testing.T) {
	small := AccuracyCI(samples(8, 10), 0.95)
	large := AccuracyCI(samples(800, 1000), 0.95)
	if large.Width() >= small.Width() {
		t.Errorf("width with 1000 samples (%f) should be below width with 10 (%f)", large.Width(), small.Width())
	}
}
