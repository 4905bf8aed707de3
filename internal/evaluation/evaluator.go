// Package evaluation runs an OCR engine over a dataset and scores the
// predictions, reporting progress through a jobstate.Run.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ocrlab/ocrlab/internal/dataset"
	"github.com/ocrlab/ocrlab/internal/jobstate"
	"github.com/ocrlab/ocrlab/internal/models"
	"github.com/ocrlab/ocrlab/internal/ocr"
	"github.com/ocrlab/ocrlab/internal/scoring"
)

// SampleError is the failure of one sample, which aborts the run.
type SampleError struct {
	Index    int // 1-based
	Total    int
	Filename string
	Err      error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample %d/%d (%s): %v", e.Index, e.Total, e.Filename, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// Evaluator drives one engine over samples.
type Evaluator struct {
	engine ocr.Engine
	logger *slog.Logger

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithEvaluatorLogger sets the logger; slog.Default is used otherwise.
func WithEvaluatorLogger(l *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator creates an evaluator for engine.
func NewEvaluator(engine ocr.Engine, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{engine: engine, listeners: []ProgressListener{}}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// OnProgress registers a progress listener.
func (e *Evaluator) OnProgress(listener ProgressListener) {
	e.progressMu.Lock()
	defer e.progressMu.Unlock()
	e.listeners = append(e.listeners, listener)
}

func (e *Evaluator) notifyProgress(event ProgressEvent) {
	e.progressMu.Lock()
	listeners := make([]ProgressListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Run evaluates samples in order and finishes run with Complete or Fail.
//
// The first OCR error aborts the run: partial results are discarded and the
// run fails with a *SampleError message. When ctx is canceled Run returns
// ctx.Err() without writing further state. An error from the run handle
// (for example after a reset) is returned as is.
func (e *Evaluator) Run(ctx context.Context, run *jobstate.Run, samples []dataset.Sample) (*models.Results, error) {
	total := len(samples)
	start := time.Now()

	e.notifyProgress(ProgressEvent{
		EventType:    EventRunStart,
		RunID:        run.ID(),
		TotalSamples: total,
		Message:      fmt.Sprintf("Starting evaluation of %d samples", total),
		Details:      map[string]any{"engine": e.engine.Name()},
	})

	details := make([]models.SampleResult, 0, total)
	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sampleStart := time.Now()
		frags, err := e.engine.Recognize(ctx, ocr.Request{ImagePath: s.ImagePath})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			serr := &SampleError{Index: i + 1, Total: total, Filename: s.Filename, Err: err}
			e.logger.Warn("sample failed", "run_id", run.ID(), "file", s.Filename, "error", err)
			if ferr := run.Fail(serr.Error()); ferr != nil {
				return nil, ferr
			}
			e.notifyProgress(ProgressEvent{
				EventType:    EventRunFailed,
				RunID:        run.ID(),
				Filename:     s.Filename,
				SampleNum:    i + 1,
				TotalSamples: total,
				Progress:     100 * i / total,
				DurationMs:   time.Since(start).Milliseconds(),
				Message:      serr.Error(),
			})
			return nil, serr
		}

		predicted := ocr.FullText(frags)
		d := models.SampleResult{
			Filename:    s.Filename,
			GroundTruth: s.GroundTruth,
			Predicted:   predicted,
			Correct:     scoring.Match(predicted, s.GroundTruth),
			Confidence:  ocr.MeanConfidence(frags),
			CER:         scoring.CER(predicted, s.GroundTruth),
		}
		details = append(details, d)

		if err := run.Advance(i+1, total, s.Filename); err != nil {
			return nil, err
		}
		e.logger.Debug("sample evaluated", "run_id", run.ID(), "file", s.Filename, "correct", d.Correct)
		e.notifyProgress(ProgressEvent{
			EventType:    EventSampleComplete,
			RunID:        run.ID(),
			Filename:     s.Filename,
			SampleNum:    i + 1,
			TotalSamples: total,
			Correct:      d.Correct,
			Progress:     100 * (i + 1) / total,
			DurationMs:   time.Since(sampleStart).Milliseconds(),
			Details:      map[string]any{"predicted": predicted, "cer": d.CER},
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := scoring.Summarize(details)
	if err := run.Complete(results); err != nil {
		return nil, err
	}
	e.notifyProgress(ProgressEvent{
		EventType:    EventRunComplete,
		RunID:        run.ID(),
		TotalSamples: total,
		Progress:     100,
		DurationMs:   time.Since(start).Milliseconds(),
		Message:      "Evaluation completed successfully",
		Details: map[string]any{
			"accuracy":            results.Accuracy,
			"correct_predictions": results.CorrectPredictions,
		},
	})
	return results, nil
}
