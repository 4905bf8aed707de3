package jobstate

import (
	"fmt"

	"github.com/ocrlab/ocrlab/internal/models"
)

// AlreadyRunningError is returned by Begin when a run is in progress.
type AlreadyRunningError struct {
	RunID    string
	Progress int
}

func (e *AlreadyRunningError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("evaluation %s is already in progress (%d%%)", e.RunID, e.Progress)
	}
	return "evaluation is already in progress"
}

// InvalidStateError is returned when a transition is attempted from a state
// that does not allow it. Stale is set when the caller's run was superseded
// by a reset or a newer run.
type InvalidStateError struct {
	Op    string
	From  models.JobStatus
	Stale bool
}

func (e *InvalidStateError) Error() string {
	if e.Stale {
		return fmt.Sprintf("jobstate: %s from a superseded run (current status %s)", e.Op, e.From)
	}
	return fmt.Sprintf("jobstate: cannot %s while %s", e.Op, e.From)
}
