package session

import (
	"log/slog"

	"github.com/ocrlab/ocrlab/internal/evaluation"
)

// Listener converts evaluation progress into session events. Write errors
// are logged and otherwise ignored so that logging never stops a run.
func Listener(l Logger) evaluation.ProgressListener {
	return func(e evaluation.ProgressEvent) {
		var ev Event
		switch e.EventType {
		case evaluation.EventRunStart:
			engine, _ := e.Details["engine"].(string) //nolint:errcheck
			ev = NewEvent(EventRunStart, e.RunID, RunStartData(engine, e.TotalSamples))
		case evaluation.EventSampleComplete:
			ev = NewEvent(EventSampleComplete, e.RunID,
				SampleData(e.Filename, e.SampleNum, e.TotalSamples, e.Correct, e.Progress, e.DurationMs))
		case evaluation.EventRunComplete:
			acc := jsonFloat(e.Details["accuracy"])
			correct := jsonNumber(e.Details["correct_predictions"])
			ev = NewEvent(EventRunComplete, e.RunID, RunCompleteData(e.TotalSamples, acc, correct, e.DurationMs))
		case evaluation.EventRunFailed:
			ev = NewEvent(EventRunFailed, e.RunID, ErrorData(e.Message, map[string]any{
				"filename":   e.Filename,
				"sample_num": e.SampleNum,
			}))
		default:
			return
		}
		if err := l.Log(ev); err != nil {
			slog.Warn("writing session event", "type", ev.Type, "error", err)
		}
	}
}
