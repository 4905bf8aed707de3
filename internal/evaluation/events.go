package evaluation

// ProgressListener receives progress updates.
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event.
type EventType string

const (
	EventRunStart       EventType = "run_start"
	EventSampleComplete EventType = "sample_complete"
	EventRunComplete    EventType = "run_complete"
	EventRunFailed      EventType = "run_failed"
)

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	EventType    EventType
	RunID        string
	Filename     string
	SampleNum    int
	TotalSamples int
	Correct      bool
	Progress     int
	DurationMs   int64
	Message      string
	Details      map[string]any
}
