// Package history persists the outcome of finished evaluation runs.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ocrlab/ocrlab/internal/models"
)

// ErrRunNotFound is returned when a run ID does not match any stored run.
var ErrRunNotFound = errors.New("run not found")

// Record is a finished run.
type Record struct {
	ID        string           `json:"id"`
	Dataset   string           `json:"dataset"`
	Engine    string           `json:"engine"`
	Languages []string         `json:"languages"`
	GPU       bool             `json:"gpu"`
	Status    models.JobStatus `json:"status"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Results   *models.Results  `json:"results,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Summary is the list view of a Record.
type Summary struct {
	ID                 string           `json:"id"`
	Dataset            string           `json:"dataset"`
	Engine             string           `json:"engine"`
	Status             models.JobStatus `json:"status"`
	Accuracy           float64          `json:"accuracy"`
	TotalSamples       int              `json:"total_samples"`
	CorrectPredictions int              `json:"correct_predictions"`
	Duration           float64          `json:"duration"`
	StartTime          time.Time        `json:"start_time"`
}

// Summary builds the list view of r.
func (r *Record) Summary() Summary {
	s := Summary{
		ID:        r.ID,
		Dataset:   r.Dataset,
		Engine:    r.Engine,
		Status:    r.Status,
		StartTime: r.StartTime,
	}
	if !r.EndTime.IsZero() {
		s.Duration = r.EndTime.Sub(r.StartTime).Seconds()
	}
	if r.Results != nil {
		s.Accuracy = r.Results.Accuracy
		s.TotalSamples = r.Results.TotalSamples
		s.CorrectPredictions = r.Results.CorrectPredictions
	}
	return s
}

// Stats aggregates all stored runs.
type Stats struct {
	TotalRuns     int     `json:"total_runs"`
	CompletedRuns int     `json:"completed_runs"`
	FailedRuns    int     `json:"failed_runs"`
	TotalSamples  int     `json:"total_samples"`
	MeanAccuracy  float64 `json:"mean_accuracy"`
}

// Store provides access to run history.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	// Get returns ErrRunNotFound for an unknown id.
	Get(ctx context.Context, id string) (*Record, error)
	// List returns all runs sorted by field ("start_time", "accuracy",
	// "duration", "samples") in order "asc" or "desc" (default).
	List(ctx context.Context, field, order string) ([]Summary, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Open returns the store for backend. For "file" target is a directory, for
// "sqlite" a database path or DSN. "none" returns a nil Store.
func Open(backend, target string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(target), nil
	case BackendSQLite:
		return OpenSQLite(target)
	case BackendNone:
		return nil, nil
	}
	return nil, fmt.Errorf("history: unknown backend %q", backend)
}

func sortSummaries(runs []Summary, field, order string) {
	less := func(i, j int) bool {
		switch field {
		case "accuracy":
			return runs[i].Accuracy < runs[j].Accuracy
		case "duration":
			return runs[i].Duration < runs[j].Duration
		case "samples":
			return runs[i].TotalSamples < runs[j].TotalSamples
		default:
			return runs[i].StartTime.Before(runs[j].StartTime)
		}
	}

	if order == "asc" {
		sort.SliceStable(runs, less)
	} else {
		sort.SliceStable(runs, func(i, j int) bool { return less(j, i) })
	}
}

func statsOf(recs []*Record) *Stats {
	st := &Stats{}
	var accSum float64
	for _, r := range recs {
		st.TotalRuns++
		switch r.Status {
		case models.JobCompleted:
			st.CompletedRuns++
			if r.Results != nil {
				st.TotalSamples += r.Results.TotalSamples
				accSum += r.Results.Accuracy
			}
		case models.JobFailed:
			st.FailedRuns++
		}
	}
	if st.CompletedRuns > 0 {
		st.MeanAccuracy = accSum / float64(st.CompletedRuns)
	}
	return st
}
