package session

import "time"

// EventType identifies the kind of session event.
type EventType string

const (
	EventRunStart       EventType = "run_start"
	EventSampleComplete EventType = "sample_complete"
	EventRunComplete    EventType = "run_complete"
	EventRunFailed      EventType = "run_failed"
	EventError          EventType = "error"
)

// Event is a single timestamped entry in a session log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, runID string, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		RunID:     runID,
		Data:      data,
	}
}

// RunStartData returns event data for a run start.
func RunStartData(engine string, totalSamples int) map[string]any {
	return map[string]any{
		"engine":        engine,
		"total_samples": totalSamples,
	}
}

// SampleData returns event data for one evaluated sample.
func SampleData(filename string, num, total int, correct bool, progress int, durationMs int64) map[string]any {
	return map[string]any{
		"filename":      filename,
		"sample_num":    num,
		"total_samples": total,
		"correct":       correct,
		"progress":      progress,
		"duration_ms":   durationMs,
	}
}

// RunCompleteData returns event data for a successful run.
func RunCompleteData(total int, accuracy float64, correct int, durationMs int64) map[string]any {
	return map[string]any{
		"total_samples":       total,
		"accuracy":            accuracy,
		"correct_predictions": correct,
		"duration_ms":         durationMs,
	}
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
