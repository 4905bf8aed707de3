package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ocrlab/ocrlab/internal/dataset"
	"github.com/ocrlab/ocrlab/internal/history"
	"github.com/ocrlab/ocrlab/internal/jobstate"
	"github.com/ocrlab/ocrlab/internal/models"
	"github.com/ocrlab/ocrlab/internal/ocr"
)

// ErrInvalidRequest means a StartRequest failed validation.
var ErrInvalidRequest = errors.New("invalid request")

// StartRequest asks for an evaluation run.
type StartRequest struct {
	DatasetType dataset.Kind `json:"dataset_type"`
	DatasetPath string       `json:"dataset_path,omitempty"`
	// Languages defaults to the service default when nil. An explicitly
	// empty list is rejected.
	Languages []string `json:"languages"`
	GPU       bool     `json:"gpu"`
	Engine    string   `json:"engine,omitempty"`
	// Dir bypasses the catalog and evaluates this directory directly. It is
	// only set by the CLI.
	Dir string `json:"-"`
}

// EngineFactory opens an OCR engine by name.
type EngineFactory func(name string, cfg ocr.Config) (ocr.Engine, error)

// Service is the start/status/reset boundary used by the HTTP API, the RPC
// server and the CLI.
type Service struct {
	state   *jobstate.State
	catalog *dataset.Catalog

	openEngine    EngineFactory
	engineOptions map[string]map[string]any
	defaults      models.RunConfig
	store         history.Store
	logger        *slog.Logger
	listeners     []ProgressListener
	newID         func() string

	mu      sync.Mutex
	current *inflight
	wg      sync.WaitGroup
}

type inflight struct {
	id     string
	cancel context.CancelFunc
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEngineFactory replaces ocr.Open.
func WithEngineFactory(f EngineFactory) ServiceOption {
	return func(s *Service) { s.openEngine = f }
}

// WithEngineOptions sets per-engine option maps, keyed by engine name.
func WithEngineOptions(opts map[string]map[string]any) ServiceOption {
	return func(s *Service) { s.engineOptions = opts }
}

// WithDefaults sets the engine, languages and gpu flag used when a request
// leaves them out.
func WithDefaults(cfg models.RunConfig) ServiceOption {
	return func(s *Service) { s.defaults = cfg }
}

// WithHistory records every finished run in store.
func WithHistory(store history.Store) ServiceOption {
	return func(s *Service) { s.store = store }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithListener adds a progress listener to every run.
func WithListener(l ProgressListener) ServiceOption {
	return func(s *Service) { s.listeners = append(s.listeners, l) }
}

// NewService wires a service around state and catalog.
func NewService(state *jobstate.State, catalog *dataset.Catalog, opts ...ServiceOption) *Service {
	s := &Service{
		state:      state,
		catalog:    catalog,
		openEngine: ocr.Open,
		defaults:   models.RunConfig{Engine: "tesseract", Languages: []string{"en"}},
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Defaults returns the run configuration used for omitted request fields.
func (s *Service) Defaults() models.RunConfig {
	cfg := s.defaults
	cfg.Languages = append([]string(nil), s.defaults.Languages...)
	return cfg
}

// Catalog returns the dataset catalog.
func (s *Service) Catalog() *dataset.Catalog { return s.catalog }

// History returns the configured history store, which may be nil.
func (s *Service) History() history.Store { return s.store }

// Status returns a snapshot of the job state.
func (s *Service) Status() models.Snapshot { return s.state.Snapshot() }

// Reset returns the job state to idle and cancels the in-flight run, if any.
func (s *Service) Reset() {
	// s.mu spans the state reset so a run begun concurrently is either
	// reset and canceled together or left alone.
	s.mu.Lock()
	s.state.Reset()
	cur := s.current
	s.current = nil
	s.mu.Unlock()
	if cur != nil {
		s.logger.Info("canceling run after reset", "run_id", cur.id)
		cur.cancel()
	}
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() { s.wg.Wait() }

// prepared is a validated request whose run has begun.
type prepared struct {
	run     *jobstate.Run
	ctx     context.Context
	cancel  context.CancelFunc
	samples []dataset.Sample
	cfg     models.RunConfig
	dir     string
	start   time.Time
}

func (s *Service) resolveConfig(req StartRequest) (models.RunConfig, error) {
	cfg := models.RunConfig{Engine: req.Engine, Languages: req.Languages, GPU: req.GPU}
	if cfg.Engine == "" {
		cfg.Engine = s.defaults.Engine
	}
	if req.Languages == nil {
		cfg.Languages = append([]string(nil), s.defaults.Languages...)
	}
	if len(cfg.Languages) == 0 {
		return cfg, fmt.Errorf("%w: at least one valid language code is required", ErrInvalidRequest)
	}
	for _, l := range cfg.Languages {
		if strings.TrimSpace(l) == "" {
			return cfg, fmt.Errorf("%w: at least one valid language code is required", ErrInvalidRequest)
		}
	}
	return cfg, nil
}

// prepare validates req, loads the dataset and begins a run whose context
// derives from parent. Nothing in the job state changes unless it succeeds.
func (s *Service) prepare(parent context.Context, req StartRequest) (*prepared, error) {
	cfg, err := s.resolveConfig(req)
	if err != nil {
		return nil, err
	}

	if snap := s.state.Snapshot(); snap.Status == models.JobRunning {
		return nil, &jobstate.AlreadyRunningError{RunID: snap.RunID, Progress: snap.Progress}
	}

	dir := req.Dir
	if dir == "" {
		if s.catalog == nil {
			return nil, fmt.Errorf("%w: no dataset catalog configured", ErrInvalidRequest)
		}
		if dir, err = s.catalog.Resolve(req.DatasetType, req.DatasetPath); err != nil {
			return nil, err
		}
	}
	samples, err := dataset.Load(dir)
	if err != nil {
		return nil, err
	}

	id := s.newID()
	s.mu.Lock()
	run, err := s.state.Begin(len(samples), jobstate.RunMeta{ID: id, Dataset: dir})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	ctx, cancel := context.WithCancel(parent)
	s.current = &inflight{id: id, cancel: cancel}
	s.mu.Unlock()

	start := time.Now()
	if snap := s.state.Snapshot(); snap.StartTime != nil && snap.RunID == id {
		start = *snap.StartTime
	}
	s.logger.Info("evaluation started", "run_id", id, "dataset", dir, "samples", len(samples),
		"engine", cfg.Engine, "languages", cfg.Languages)
	return &prepared{run: run, ctx: ctx, cancel: cancel, samples: samples, cfg: cfg, dir: dir, start: start}, nil
}

// Start begins a run in the background and returns its id.
func (s *Service) Start(_ context.Context, req StartRequest) (string, error) {
	// The run outlives the request that started it.
	p, err := s.prepare(context.Background(), req)
	if err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.untrack(p.run.ID())
		defer p.cancel()
		_, _ = s.execute(p.ctx, p)
	}()
	return p.run.ID(), nil
}

// RunSync runs an evaluation in the calling goroutine. A run that fails on a
// sample returns its record with status failed and a nil error.
func (s *Service) RunSync(ctx context.Context, req StartRequest) (*history.Record, error) {
	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	defer p.cancel()
	defer s.untrack(p.run.ID())
	return s.execute(p.ctx, p)
}

func (s *Service) untrack(id string) {
	s.mu.Lock()
	if s.current != nil && s.current.id == id {
		s.current = nil
	}
	s.mu.Unlock()
}

// execute opens the engine, evaluates and records the outcome. The returned
// record is nil when the run was canceled or superseded.
func (s *Service) execute(ctx context.Context, p *prepared) (*history.Record, error) {
	rec := &history.Record{
		ID:        p.run.ID(),
		Dataset:   p.dir,
		Engine:    p.cfg.Engine,
		Languages: p.cfg.Languages,
		GPU:       p.cfg.GPU,
		StartTime: p.start,
	}
	log := s.logger.With("run_id", rec.ID)

	engine, err := s.openEngine(p.cfg.Engine, ocr.Config{
		Languages: p.cfg.Languages,
		GPU:       p.cfg.GPU,
		Options:   s.engineOptions[p.cfg.Engine],
	})
	if err != nil {
		msg := "open engine: " + err.Error()
		log.Error("evaluation failed", "error", msg)
		if ferr := p.run.Fail(msg); ferr != nil {
			return nil, ferr
		}
		rec.Status, rec.Error, rec.EndTime = models.JobFailed, msg, time.Now()
		s.record(rec)
		return rec, nil
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			log.Warn("closing engine", "error", cerr)
		}
	}()

	ev := NewEvaluator(engine, WithEvaluatorLogger(log))
	for _, l := range s.listeners {
		ev.OnProgress(l)
	}

	results, err := ev.Run(ctx, p.run, p.samples)
	rec.EndTime = time.Now()

	var serr *SampleError
	var stale *jobstate.InvalidStateError
	switch {
	case err == nil:
		rec.Status, rec.Results = models.JobCompleted, results
		log.Info("evaluation completed", "accuracy", results.Accuracy,
			"correct", results.CorrectPredictions, "total", results.TotalSamples)
	case errors.As(err, &serr):
		rec.Status, rec.Error = models.JobFailed, serr.Error()
		log.Error("evaluation failed", "error", serr)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Info("evaluation canceled")
		// A reset has already made the run stale. A caller cancelation on a
		// run that is still current marks it failed.
		if ferr := p.run.Fail("canceled"); ferr == nil {
			rec.Status, rec.Error = models.JobFailed, "canceled"
			s.record(rec)
			return rec, err
		}
		return nil, err
	case errors.As(err, &stale):
		log.Info("evaluation superseded", "error", err)
		return nil, err
	default:
		return nil, err
	}
	s.record(rec)
	return rec, nil
}

func (s *Service) record(rec *history.Record) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, rec); err != nil {
		s.logger.Error("saving run history", "run_id", rec.ID, "error", err)
	}
}

// Detect runs the default engine (or engine, when non-empty) over a single
// image.
func (s *Service) Detect(ctx context.Context, imagePath, engine string, languages []string) ([]ocr.Fragment, error) {
	name := engine
	if name == "" {
		name = s.defaults.Engine
	}
	if len(languages) == 0 {
		languages = s.defaults.Languages
	}
	e, err := s.openEngine(name, ocr.Config{
		Languages: languages,
		GPU:       s.defaults.GPU,
		Options:   s.engineOptions[name],
	})
	if err != nil {
		return nil, err
	}
	defer e.Close() //nolint:errcheck
	return e.Recognize(ctx, ocr.Request{ImagePath: imagePath})
}
