package models

import "time"

// JobStatus is the lifecycle status of an evaluation run.
type JobStatus string

const (
	JobIdle      JobStatus = "idle"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status ends a run.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Snapshot is a point-in-time copy of the job state, safe to hand to
// readers on other goroutines.
type Snapshot struct {
	Status    JobStatus  `json:"status"`
	Message   string     `json:"message"`
	Progress  int        `json:"progress"`
	RunID     string     `json:"run_id,omitempty"`
	Dataset   string     `json:"dataset,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Results is only set when Status == JobCompleted.
	Results *Results `json:"results,omitempty"`
	// Error is only set when Status == JobFailed.
	Error string `json:"error,omitempty"`
}

// RunConfig selects how a dataset is evaluated.
type RunConfig struct {
	Engine    string   `json:"engine,omitempty"`
	Languages []string `json:"languages"`
	// GPU is passed through to the OCR engine and otherwise ignored.
	GPU bool `json:"gpu"`
}
