package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ocrlab/ocrlab/internal/dataset"
	"github.com/ocrlab/ocrlab/internal/evaluation"
	"github.com/ocrlab/ocrlab/internal/history"
	"github.com/ocrlab/ocrlab/internal/jobstate"
	"github.com/ocrlab/ocrlab/internal/models"
	"github.com/ocrlab/ocrlab/internal/projectconfig"
	"github.com/ocrlab/ocrlab/internal/session"
)

// app is the set of services a command needs, built from .ocrlab.yaml.
type app struct {
	cfg        *projectconfig.ProjectConfig
	catalog    *dataset.Catalog
	uploader   *dataset.Uploader
	store      history.Store
	sessionLog session.Logger
	svc        *evaluation.Service
	logger     *slog.Logger
}

// newApp loads the project config and wires the evaluation service. extra
// options are applied after the configured ones.
func newApp(opts *globalOptions, extra ...evaluation.ServiceOption) (*app, error) {
	cfg, err := projectconfig.Load(opts.configDir)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	store, err := history.Open(cfg.History.Backend, cfg.HistoryTarget())
	if err != nil {
		return nil, fmt.Errorf("opening run history: %w", err)
	}
	sessionLog, err := session.Open(cfg.SessionLogDir())
	if err != nil {
		if store != nil {
			store.Close() //nolint:errcheck
		}
		return nil, fmt.Errorf("opening session log: %w", err)
	}

	a := &app{
		cfg: cfg,
		catalog: &dataset.Catalog{
			SampleDir: cfg.Resolve(cfg.Paths.SampleDataset),
			UploadDir: cfg.Resolve(cfg.Paths.Uploads),
		},
		store:      store,
		sessionLog: sessionLog,
		logger:     logger,
	}
	a.uploader = dataset.NewUploader(a.catalog.UploadDir, cfg.Upload)

	gpu := cfg.Defaults.GPU != nil && *cfg.Defaults.GPU
	svcOpts := []evaluation.ServiceOption{
		evaluation.WithDefaults(models.RunConfig{
			Engine:    cfg.Defaults.Engine,
			Languages: cfg.Defaults.Languages,
			GPU:       gpu,
		}),
		evaluation.WithEngineOptions(cfg.OCR.Options),
		evaluation.WithListener(session.Listener(sessionLog)),
		evaluation.WithLogger(logger),
	}
	if store != nil {
		svcOpts = append(svcOpts, evaluation.WithHistory(store))
	}
	a.svc = evaluation.NewService(jobstate.New(), a.catalog, append(svcOpts, extra...)...)

	if cfg.Path != "" {
		logger.Debug("loaded project config", "path", cfg.Path)
	}
	return a, nil
}

// requireHistory returns the history store or an error when history is
// disabled.
func (a *app) requireHistory() (history.Store, error) {
	if a.store == nil {
		return nil, errors.New("run history is disabled (history.backend: none)")
	}
	return a.store, nil
}

// Close waits for background runs and releases the history store and session
// log.
func (a *app) Close() error {
	a.svc.Wait()
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.sessionLog.Close())
	return errors.Join(errs...)
}
