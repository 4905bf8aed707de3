package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Sample is one image with its expected text.
type Sample struct {
	Filename    string
	ImagePath   string
	GroundTruth string
}

// ErrNotFound means the dataset directory or its labels file is missing.
var ErrNotFound = errors.New("dataset not found")

// Load reads dir/labels.txt and returns its samples in file order. Every
// referenced image must exist; all missing names are reported together.
func Load(dir string) ([]Sample, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
	}
	labelsPath := filepath.Join(dir, LabelsFile)
	if _, err := os.Stat(labelsPath); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: labels file not found in %s", ErrNotFound, dir)
	}

	labels, err := ReadLabels(labelsPath)
	if err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, len(labels))
	var missing []string
	for _, l := range labels {
		p := filepath.Join(dir, l.Filename)
		if fi, err := os.Stat(p); err != nil || fi.IsDir() {
			missing = append(missing, l.Filename)
			continue
		}
		samples = append(samples, Sample{Filename: l.Filename, ImagePath: p, GroundTruth: l.Text})
	}
	if len(missing) > 0 {
		return nil, &FormatError{File: labelsPath, Msg: "missing images: " + strings.Join(missing, ", ")}
	}
	return samples, nil
}

// Range returns samples in the 1-based inclusive range [start, end]. end is
// clamped to the number of samples.
func Range(samples []Sample, start, end int) ([]Sample, error) {
	if start < 1 {
		return nil, fmt.Errorf("dataset: range start must be >= 1, got %d", start)
	}
	if end < start {
		return nil, fmt.Errorf("dataset: range end (%d) must be >= start (%d)", end, start)
	}
	if end > len(samples) {
		end = len(samples)
	}
	if start > len(samples) {
		return []Sample{}, nil
	}
	return samples[start-1 : end], nil
}
