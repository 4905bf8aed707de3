// Package ocr defines the contract the evaluator uses to talk to an OCR
// engine, plus a small registry so engines can be selected by name.
package ocr

import (
	"context"
	"encoding/json"
	"strings"
)

// Point is a pixel coordinate with the origin in the upper-left corner. It is
// encoded in JSON as an [x, y] pair.
type Point struct {
	X float64
	Y float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var xy [2]float64
	if err := json.Unmarshal(data, &xy); err != nil {
		return err
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

// Box is a quadrilateral given clockwise from the top-left corner.
type Box [4]Point

// BoxFromRect builds a Box from an axis-aligned rectangle.
func BoxFromRect(left, top, width, height float64) Box {
	return Box{
		{X: left, Y: top},
		{X: left + width, Y: top},
		{X: left + width, Y: top + height},
		{X: left, Y: top + height},
	}
}

// Fragment is one piece of recognized text.
type Fragment struct {
	Text string `json:"text"`
	// Confidence is in [0, 1].
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"bbox"`
}

// Request identifies the image to recognize.
type Request struct {
	ImagePath string
}

// Config is passed to an engine factory.
type Config struct {
	Languages []string
	// GPU is advisory; engines that cannot use a GPU ignore it.
	GPU bool
	// Options carries engine-specific settings, decoded by each engine.
	Options map[string]any
}

//go:generate go tool mockgen -destination=mocks/engine_mock.go -package=mocks . Engine

// Engine recognizes text in images.
type Engine interface {
	Name() string
	// Recognize returns fragments in reading order. Failures are reported as
	// *Error.
	Recognize(ctx context.Context, req Request) ([]Fragment, error)
	Close() error
}

// FullText joins fragment texts in order with a single space.
func FullText(fragments []Fragment) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		parts = append(parts, f.Text)
	}
	return strings.Join(parts, " ")
}

// MeanConfidence averages fragment confidences; 0 for no fragments.
func MeanConfidence(fragments []Fragment) float64 {
	if len(fragments) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fragments {
		sum += f.Confidence
	}
	return sum / float64(len(fragments))
}
