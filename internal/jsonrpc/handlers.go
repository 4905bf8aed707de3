package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ocrlab/ocrlab/internal/dataset"
	"github.com/ocrlab/ocrlab/internal/evaluation"
	"github.com/ocrlab/ocrlab/internal/history"
	"github.com/ocrlab/ocrlab/internal/jobstate"
	"github.com/ocrlab/ocrlab/internal/models"
	"github.com/ocrlab/ocrlab/internal/validation"
)

// --- run.start ---

type RunStartResult struct {
	RunID string `json:"run_id"`
}

func (s *Server) runStart(ctx context.Context, _ *conn, params json.RawMessage) (any, *Error) {
	if len(params) == 0 {
		return nil, newError(CodeInvalidParams, "params are required")
	}
	if errs := validation.ValidateStartRequest(params); len(errs) > 0 {
		return nil, newError(CodeValidationFailed, errs)
	}

	var req evaluation.StartRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, newError(CodeInvalidParams, err.Error())
	}

	id, err := s.svc.Start(ctx, req)
	if err != nil {
		return nil, startError(err)
	}
	return &RunStartResult{RunID: id}, nil
}

func startError(err error) *Error {
	var (
		running *jobstate.AlreadyRunningError
		format  *dataset.FormatError
	)
	switch {
	case errors.As(err, &running):
		return newError(CodeAlreadyRunning, running.RunID)
	case errors.As(err, &format):
		return newError(CodeDatasetFormat, err.Error())
	case errors.Is(err, dataset.ErrNotFound):
		return newError(CodeNotFound, err.Error())
	case errors.Is(err, evaluation.ErrInvalidRequest), errors.Is(err, dataset.ErrInvalidDataset):
		return newError(CodeInvalidParams, err.Error())
	}
	return newError(CodeInternalError, err.Error())
}

// --- run.status ---

func (s *Server) runStatus(context.Context, *conn, json.RawMessage) (any, *Error) {
	return s.svc.Status(), nil
}

// --- run.reset ---

type RunResetResult struct {
	Reset bool `json:"reset"`
}

func (s *Server) runReset(context.Context, *conn, json.RawMessage) (any, *Error) {
	s.svc.Reset()
	return &RunResetResult{Reset: true}, nil
}

// --- run.watch ---

// RunWatchResult carries the job state at subscription time so a client
// can render a run already in progress before the next notification.
type RunWatchResult struct {
	Watching bool            `json:"watching"`
	Status   models.Snapshot `json:"status"`
}

func (s *Server) runWatch(_ context.Context, c *conn, _ json.RawMessage) (any, *Error) {
	s.hub.watch(c)
	return &RunWatchResult{Watching: true, Status: s.svc.Status()}, nil
}

func (s *Server) runUnwatch(_ context.Context, c *conn, _ json.RawMessage) (any, *Error) {
	s.hub.unwatch(c)
	return &RunWatchResult{Watching: false, Status: s.svc.Status()}, nil
}

// --- dataset.list ---

type DatasetListResult struct {
	Datasets []dataset.Info `json:"datasets"`
}

func (s *Server) datasetList(context.Context, *conn, json.RawMessage) (any, *Error) {
	catalog := s.svc.Catalog()
	if catalog == nil {
		return &DatasetListResult{Datasets: []dataset.Info{}}, nil
	}
	infos, err := catalog.List()
	if err != nil {
		return nil, newError(CodeInternalError, err.Error())
	}
	return &DatasetListResult{Datasets: infos}, nil
}

// --- history.list ---

type HistoryListParams struct {
	Sort  string `json:"sort,omitempty"`
	Order string `json:"order,omitempty"`
}

type HistoryListResult struct {
	Runs []history.Summary `json:"runs"`
}

func (s *Server) historyList(ctx context.Context, _ *conn, params json.RawMessage) (any, *Error) {
	var p HistoryListParams
	if err := unmarshalOptional(params, &p); err != nil {
		return nil, newError(CodeInvalidParams, err.Error())
	}
	switch p.Order {
	case "", "asc", "desc":
	default:
		return nil, newError(CodeInvalidParams, fmt.Sprintf("order must be asc or desc, got %q", p.Order))
	}

	store := s.svc.History()
	if store == nil {
		return &HistoryListResult{Runs: []history.Summary{}}, nil
	}
	runs, err := store.List(ctx, p.Sort, p.Order)
	if err != nil {
		return nil, newError(CodeInternalError, err.Error())
	}
	if runs == nil {
		runs = []history.Summary{}
	}
	return &HistoryListResult{Runs: runs}, nil
}

// --- history.get ---

type HistoryGetParams struct {
	RunID string `json:"run_id"`
}

func (s *Server) historyGet(ctx context.Context, _ *conn, params json.RawMessage) (any, *Error) {
	var p HistoryGetParams
	if err := unmarshalOptional(params, &p); err != nil {
		return nil, newError(CodeInvalidParams, err.Error())
	}
	if strings.TrimSpace(p.RunID) == "" {
		return nil, newError(CodeInvalidParams, "run_id is required")
	}

	store := s.svc.History()
	if store == nil {
		return nil, newError(CodeNotFound, p.RunID)
	}
	rec, err := store.Get(ctx, p.RunID)
	if errors.Is(err, history.ErrRunNotFound) {
		return nil, newError(CodeNotFound, p.RunID)
	}
	if err != nil {
		return nil, newError(CodeInternalError, err.Error())
	}
	return rec, nil
}

// unmarshalOptional decodes params into v, treating absent params as {}.
func unmarshalOptional(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	return json.Unmarshal(params, v)
}
