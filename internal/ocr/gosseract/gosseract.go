//go:build gosseract

// Package gosseract recognizes text in-process through the libtesseract cgo
// bindings. Build with -tags gosseract; the leptonica and tesseract headers
// must be installed.
package gosseract

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ocrlab/ocrlab/internal/ocr"
	"github.com/otiai10/gosseract/v2"
)

// Name is the registry name of this engine.
const Name = "gosseract"

func init() {
	ocr.Register(Name, func(cfg ocr.Config) (ocr.Engine, error) {
		return New(cfg)
	})
}

// Engine wraps a single gosseract client. The client is not safe for
// concurrent use, so calls are serialized.
type Engine struct {
	mu     sync.Mutex
	client *gosseract.Client
	langs  []string
}

// New creates a client for the given languages. Language codes are passed
// through; tesseract model names such as "eng" are expected, with "en" and
// "ch_sim" accepted as aliases.
func New(cfg ocr.Config) (*Engine, error) {
	if len(cfg.Languages) == 0 {
		return nil, &ocr.Error{Op: "open", Err: fmt.Errorf("%w: no languages requested", ocr.ErrUnsupportedLanguage)}
	}
	langs := make([]string, 0, len(cfg.Languages))
	for _, l := range cfg.Languages {
		langs = append(langs, alias(l))
	}
	c := gosseract.NewClient()
	if err := c.SetLanguage(langs...); err != nil {
		c.Close()
		return nil, &ocr.Error{Op: "open", Err: fmt.Errorf("%w: %v", ocr.ErrUnsupportedLanguage, err)}
	}
	return &Engine{client: c, langs: langs}, nil
}

func alias(code string) string {
	switch c := strings.ToLower(strings.TrimSpace(code)); c {
	case "en":
		return "eng"
	case "ch_sim":
		return "chi_sim"
	case "ch_tra":
		return "chi_tra"
	default:
		return c
	}
}

// Name implements ocr.Engine.
func (e *Engine) Name() string { return Name }

// Recognize implements ocr.Engine. One fragment is returned per text line.
func (e *Engine) Recognize(ctx context.Context, req ocr.Request) ([]ocr.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return nil, &ocr.Error{Op: "recognize", Image: req.ImagePath, Err: fmt.Errorf("%w: %v", ocr.ErrUnreadableImage, err)}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.client.SetImageFromBytes(data); err != nil {
		return nil, &ocr.Error{Op: "recognize", Image: req.ImagePath, Err: fmt.Errorf("%w: %v", ocr.ErrUnreadableImage, err)}
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, &ocr.Error{Op: "recognize", Image: req.ImagePath, Err: err}
	}

	fragments := make([]ocr.Fragment, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		fragments = append(fragments, ocr.Fragment{
			Text:       text,
			Confidence: b.Confidence / 100,
			Box: ocr.BoxFromRect(
				float64(b.Box.Min.X), float64(b.Box.Min.Y),
				float64(b.Box.Dx()), float64(b.Box.Dy()),
			),
		})
	}
	return fragments, nil
}

// Close releases the underlying tesseract handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}
