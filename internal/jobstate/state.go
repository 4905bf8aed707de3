// Package jobstate holds the lifecycle record of the current evaluation run.
//
// A single State is created at startup and shared by reference between the
// HTTP handlers that poll it and the background run that drives it. Only the
// holder of the *Run returned by Begin may write to it; any number of readers
// may call Snapshot concurrently.
package jobstate

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ocrlab/ocrlab/internal/models"
)

// RunMeta describes the run being started.
type RunMeta struct {
	ID      string
	Dataset string
}

// State is the shared job record. The zero value is not usable; call New.
type State struct {
	mu sync.RWMutex

	status    models.JobStatus
	message   string
	progress  int
	runID     string
	dataset   string
	startTime time.Time
	endTime   time.Time
	results   *models.Results
	errMsg    string

	// generation increments on every Begin and Reset so that a Run handle
	// from an earlier run can no longer write.
	generation uint64

	now func() time.Time
}

// New returns a State in the idle status.
func New() *State {
	return &State{status: models.JobIdle, now: time.Now}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.Snapshot{
		Status:   s.status,
		Message:  s.message,
		Progress: s.progress,
		RunID:    s.runID,
		Dataset:  s.dataset,
		Error:    s.errMsg,
	}
	if !s.startTime.IsZero() {
		t := s.startTime
		snap.StartTime = &t
	}
	if !s.endTime.IsZero() {
		t := s.endTime
		snap.EndTime = &t
	}
	if s.status == models.JobCompleted {
		snap.Results = s.results.Clone()
	}
	return snap
}

// Status returns the current status.
func (s *State) Status() models.JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Reset returns the state to idle and clears every field. It always
// succeeds. A run that is still in flight is not stopped by Reset, but its
// Run handle becomes stale and further writes from it are rejected.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
	s.status = models.JobIdle
	s.generation++
}

// Begin moves the state to running for a run over total samples. It fails
// with *AlreadyRunningError, leaving the state untouched, if a run is
// already in progress.
func (s *State) Begin(total int, meta RunMeta) (*Run, error) {
	if total < 0 {
		return nil, fmt.Errorf("jobstate: negative sample count %d", total)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == models.JobRunning {
		return nil, &AlreadyRunningError{RunID: s.runID, Progress: s.progress}
	}

	s.clearLocked()
	s.generation++
	s.status = models.JobRunning
	s.message = fmt.Sprintf("Starting evaluation of %d samples", total)
	s.runID = meta.ID
	s.dataset = meta.Dataset
	s.startTime = s.now()

	return &Run{state: s, generation: s.generation, total: total, id: meta.ID}, nil
}

func (s *State) clearLocked() {
	s.message = ""
	s.progress = 0
	s.runID = ""
	s.dataset = ""
	s.startTime = time.Time{}
	s.endTime = time.Time{}
	s.results = nil
	s.errMsg = ""
}

// checkLocked verifies that a write from generation gen for operation op is
// legal. Callers must hold s.mu.
func (s *State) checkLocked(op string, gen uint64) error {
	if gen != s.generation {
		return &InvalidStateError{Op: op, From: s.status, Stale: true}
	}
	if s.status != models.JobRunning {
		return &InvalidStateError{Op: op, From: s.status}
	}
	return nil
}

// Run is the write handle for one run. It is only valid until the state is
// reset or another run begins.
type Run struct {
	state      *State
	generation uint64
	total      int
	id         string
}

// ID returns the run identifier passed to Begin.
func (r *Run) ID() string { return r.id }

// Total returns the number of samples the run was started with.
func (r *Run) Total() int { return r.total }

// Advance records that processed samples (1-based count) out of total are
// done. Progress is floor(100*processed/total) and never decreases.
func (r *Run) Advance(processed, total int, filename string) error {
	if total <= 0 || processed < 0 || processed > total {
		return fmt.Errorf("jobstate: advance %d/%d out of range", processed, total)
	}

	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked("advance", r.generation); err != nil {
		return err
	}

	if p := 100 * processed / total; p > s.progress {
		s.progress = p
	}
	if filename != "" {
		s.message = fmt.Sprintf("Processing image %d/%d (%s)", processed, total, filename)
	} else {
		s.message = fmt.Sprintf("Processing image %d/%d", processed, total)
	}
	return nil
}

// Complete ends the run successfully and attaches results.
func (r *Run) Complete(results *models.Results) error {
	if results == nil {
		return fmt.Errorf("jobstate: complete with nil results")
	}

	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked("complete", r.generation); err != nil {
		return err
	}

	s.status = models.JobCompleted
	s.progress = 100
	s.message = "Evaluation completed successfully"
	s.results = results.Clone()
	s.errMsg = ""
	s.endTime = s.now()
	return nil
}

// Fail ends the run with an error. Progress stays where it was.
func (r *Run) Fail(msg string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "unknown error"
	}

	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked("fail", r.generation); err != nil {
		return err
	}

	s.status = models.JobFailed
	s.message = "Evaluation failed: " + msg
	s.errMsg = msg
	s.results = nil
	s.endTime = s.now()
	return nil
}
