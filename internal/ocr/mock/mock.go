// Package mock provides the "demo" engine: it reads the dataset's own labels
// and echoes them back, corrupting a deterministic fraction of predictions so
// the dashboard can be exercised without an OCR install.
package mock

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/ocrlab/ocrlab/internal/dataset"
	"github.com/ocrlab/ocrlab/internal/ocr"
)

// Name is the registry name of this engine.
const Name = "mock"

// ErrorSuffix is appended to predictions chosen to be wrong.
const ErrorSuffix = " (simulated error)"

func init() {
	ocr.Register(Name, func(cfg ocr.Config) (ocr.Engine, error) {
		return New(cfg)
	})
}

// Options are the settings under ocr.options.mock.
type Options struct {
	// ErrorRate is the fraction of images whose prediction is corrupted.
	ErrorRate float64 `mapstructure:"error_rate"`
	// FailOn lists image filenames that produce an OCR error.
	FailOn []string `mapstructure:"fail_on"`
	// Delay is slept before each recognition.
	Delay time.Duration `mapstructure:"delay"`
}

// Engine is the demo engine.
type Engine struct {
	opts Options

	mu     sync.Mutex
	labels map[string]map[string]string // dir -> filename -> text
}

// New decodes cfg.Options and returns the engine.
func New(cfg ocr.Config) (*Engine, error) {
	opts := Options{ErrorRate: 0.1}
	if len(cfg.Options) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &opts,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(cfg.Options); err != nil {
			return nil, &ocr.Error{Op: "open", Err: fmt.Errorf("mock options: %w", err)}
		}
	}
	if opts.ErrorRate < 0 || opts.ErrorRate > 1 {
		return nil, &ocr.Error{Op: "open", Err: fmt.Errorf("mock options: error_rate %v out of range [0,1]", opts.ErrorRate)}
	}
	return &Engine{opts: opts, labels: map[string]map[string]string{}}, nil
}

// Name implements ocr.Engine.
func (e *Engine) Name() string { return Name }

// Close implements ocr.Engine.
func (e *Engine) Close() error { return nil }

// Recognize implements ocr.Engine.
func (e *Engine) Recognize(ctx context.Context, req ocr.Request) ([]ocr.Fragment, error) {
	if e.opts.Delay > 0 {
		t := time.NewTimer(e.opts.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	name := filepath.Base(req.ImagePath)
	if _, err := os.Stat(req.ImagePath); err != nil {
		return nil, &ocr.Error{Op: "recognize", Image: req.ImagePath, Err: fmt.Errorf("%w: %v", ocr.ErrUnreadableImage, err)}
	}
	if slices.Contains(e.opts.FailOn, name) {
		return nil, &ocr.Error{Op: "recognize", Image: req.ImagePath, Err: errors.New("simulated engine failure")}
	}

	truth, ok, err := e.lookup(req.ImagePath)
	if err != nil {
		return nil, &ocr.Error{Op: "recognize", Image: req.ImagePath, Err: err}
	}
	if !ok {
		return demoFragments(), nil
	}

	text, conf := truth, 0.95
	if Corrupted(name, e.opts.ErrorRate) {
		text, conf = truth+ErrorSuffix, 0.6
	}
	return []ocr.Fragment{{
		Text:       text,
		Confidence: conf,
		Box:        ocr.BoxFromRect(10, 10, float64(12*len([]rune(text))), 40),
	}}, nil
}

func (e *Engine) lookup(imagePath string) (string, bool, error) {
	dir := filepath.Dir(imagePath)

	e.mu.Lock()
	defer e.mu.Unlock()
	byName, cached := e.labels[dir]
	if !cached {
		labels, err := dataset.ReadLabels(filepath.Join(dir, dataset.LabelsFile))
		switch {
		case errors.Is(err, os.ErrNotExist):
			byName = map[string]string{}
		case err != nil:
			return "", false, err
		default:
			byName = make(map[string]string, len(labels))
			for _, l := range labels {
				byName[l.Filename] = l.Text
			}
		}
		e.labels[dir] = byName
	}
	text, ok := byName[filepath.Base(imagePath)]
	return text, ok, nil
}

// Corrupted reports whether the prediction for filename is deliberately
// wrong at the given error rate. The choice depends only on the name.
func Corrupted(filename string, rate float64) bool {
	if rate <= 0 {
		return false
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(filename))
	return float64(h.Sum32()%10000)/10000 < rate
}

// demoFragments is returned for images outside any labelled dataset.
func demoFragments() []ocr.Fragment {
	return []ocr.Fragment{
		{Text: "Hello World", Confidence: 0.95, Box: ocr.BoxFromRect(10, 10, 190, 40)},
		{Text: "This is a demo", Confidence: 0.92, Box: ocr.BoxFromRect(10, 60, 240, 40)},
		{Text: "OCR Test", Confidence: 0.88, Box: ocr.BoxFromRect(10, 110, 210, 40)},
	}
}
