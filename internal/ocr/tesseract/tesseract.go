// Package tesseract runs the tesseract command-line tool and converts its TSV
// output into line fragments.
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/ocrlab/ocrlab/internal/ocr"
)

// Name is the registry name of this engine.
const Name = "tesseract"

func init() {
	ocr.Register(Name, func(cfg ocr.Config) (ocr.Engine, error) {
		return New(cfg)
	})
}

// Options are the engine-specific settings under ocr.options.
type Options struct {
	Binary      string `mapstructure:"binary"`
	PSM         int    `mapstructure:"psm"`
	OEM         int    `mapstructure:"oem"`
	TessdataDir string `mapstructure:"tessdata_dir"`
}

// Engine shells out to tesseract for every image.
type Engine struct {
	opts   Options
	langs  []string
	runner Runner
	logger *slog.Logger
}

// Option customizes New.
type Option func(*Engine)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithLogger sets the logger used for command execution.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// DecodeOptions decodes the raw option map into Options.
func DecodeOptions(raw map[string]any) (Options, error) {
	opts := Options{Binary: "tesseract"}
	if len(raw) == 0 {
		return opts, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return opts, err
	}
	if err := dec.Decode(raw); err != nil {
		return opts, fmt.Errorf("tesseract options: %w", err)
	}
	if opts.Binary == "" {
		opts.Binary = "tesseract"
	}
	return opts, nil
}

// New maps the requested languages to tesseract model names and checks that
// every model is installed.
func New(cfg ocr.Config, options ...Option) (*Engine, error) {
	opts, err := DecodeOptions(cfg.Options)
	if err != nil {
		return nil, &ocr.Error{Op: "open", Err: err}
	}
	e := &Engine{opts: opts}
	for _, o := range options {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.runner == nil {
		e.runner = execRunner{logger: e.logger}
	}
	if len(cfg.Languages) == 0 {
		return nil, &ocr.Error{Op: "open", Err: fmt.Errorf("%w: no languages requested", ocr.ErrUnsupportedLanguage)}
	}
	for _, code := range cfg.Languages {
		name, err := modelName(code)
		if err != nil {
			return nil, &ocr.Error{Op: "open", Err: fmt.Errorf("%w: %v", ocr.ErrUnsupportedLanguage, err)}
		}
		e.langs = append(e.langs, name)
	}
	if cfg.GPU {
		e.logger.Debug("tesseract has no GPU mode, ignoring gpu flag")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.checkLanguages(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) checkLanguages(ctx context.Context) error {
	args := []string{"--list-langs"}
	if e.opts.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.opts.TessdataDir)
	}
	out, errb, err := e.runner.Run(ctx, e.opts.Binary, args...)
	if err != nil {
		return &ocr.Error{Op: "open", Err: fmt.Errorf("%s --list-langs: %w", e.opts.Binary, err)}
	}
	// Older releases print the list on stderr.
	installed := parseListLangs(append(out, errb...))
	var missing []string
	for _, l := range e.langs {
		if !installed[l] {
			missing = append(missing, l)
		}
	}
	if len(missing) > 0 {
		return &ocr.Error{Op: "open", Err: fmt.Errorf("%w: %s not installed", ocr.ErrUnsupportedLanguage, strings.Join(missing, ", "))}
	}
	return nil
}

// Name implements ocr.Engine.
func (e *Engine) Name() string { return Name }

// Close implements ocr.Engine. There is nothing to release.
func (e *Engine) Close() error { return nil }

// Languages returns the tesseract model names in use.
func (e *Engine) Languages() []string {
	return append([]string(nil), e.langs...)
}

// Recognize implements ocr.Engine.
func (e *Engine) Recognize(ctx context.Context, req ocr.Request) ([]ocr.Fragment, error) {
	if _, err := os.Stat(req.ImagePath); err != nil {
		return nil, &ocr.Error{Op: "recognize", Image: req.ImagePath, Err: fmt.Errorf("%w: %v", ocr.ErrUnreadableImage, err)}
	}

	out, errb, err := e.runner.Run(ctx, e.opts.Binary, e.args(req.ImagePath)...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ocr.Error{Op: "recognize", Image: req.ImagePath, Err: classify(err, errb)}
	}
	return parseTSV(out)
}

func (e *Engine) args(image string) []string {
	args := []string{image, "stdout", "-l", strings.Join(e.langs, "+")}
	if e.opts.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.opts.PSM))
	}
	if e.opts.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.opts.OEM))
	}
	if e.opts.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.opts.TessdataDir)
	}
	return append(args, "tsv")
}

func classify(err error, stderr []byte) error {
	msg := strings.TrimSpace(string(stderr))
	low := strings.ToLower(msg)
	switch {
	case strings.Contains(low, "pixread"), strings.Contains(low, "cannot be read"), strings.Contains(low, "unsupported image"):
		return fmt.Errorf("%w: %s", ocr.ErrUnreadableImage, truncate(msg, 512))
	case strings.Contains(low, "failed loading language"):
		return fmt.Errorf("%w: %s", ocr.ErrUnsupportedLanguage, truncate(msg, 512))
	case msg != "":
		return errors.New(truncate(msg, 512))
	}
	return err
}
