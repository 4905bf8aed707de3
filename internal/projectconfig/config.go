// Package projectconfig provides the ProjectConfig struct and loader for
// .ocrlab.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ocrlab/ocrlab/internal/dataset"
	"github.com/ocrlab/ocrlab/internal/history"
	"github.com/ocrlab/ocrlab/internal/validation"
)

// FileName is the project config file looked up by Load.
const FileName = ".ocrlab.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultSampleDatasetDir = "sample_dataset"
	DefaultUploadsDir       = "uploads"
	DefaultResultsDir       = "results"

	DefaultEngine   = "tesseract"
	DefaultLanguage = "en"

	DefaultServerHost = "127.0.0.1"
	DefaultServerPort = 8000

	DefaultHistoryBackend = history.BackendFile
	DefaultSQLiteFile     = "history.db"

	DefaultSessionLogDir = ".ocrlab/sessions"
)

// PathsConfig holds dataset and result directories.
type PathsConfig struct {
	SampleDataset string `yaml:"sample_dataset,omitempty"`
	Uploads       string `yaml:"uploads,omitempty"`
	Results       string `yaml:"results,omitempty"`
}

// DefaultsConfig holds the run configuration used when a request leaves
// fields out.
type DefaultsConfig struct {
	Engine    string   `yaml:"engine,omitempty"`
	Languages []string `yaml:"languages,omitempty"`
	GPU       *bool    `yaml:"gpu,omitempty"`
}

// OCRConfig holds engine-specific options keyed by engine name.
type OCRConfig struct {
	Options map[string]map[string]any `yaml:"options,omitempty"`
}

// ServerConfig holds dashboard server settings.
type ServerConfig struct {
	Host           string   `yaml:"host,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// HistoryConfig selects where finished runs are stored.
type HistoryConfig struct {
	Backend string `yaml:"backend,omitempty"`
	DSN     string `yaml:"dsn,omitempty"`
}

// SessionLogConfig controls the NDJSON session log.
type SessionLogConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .ocrlab.yaml.
type ProjectConfig struct {
	Paths      PathsConfig      `yaml:"paths,omitempty"`
	Defaults   DefaultsConfig   `yaml:"defaults,omitempty"`
	OCR        OCRConfig        `yaml:"ocr,omitempty"`
	Server     ServerConfig     `yaml:"server,omitempty"`
	History    HistoryConfig    `yaml:"history,omitempty"`
	Upload     dataset.Limits   `yaml:"upload,omitempty"`
	SessionLog SessionLogConfig `yaml:"session_log,omitempty"`

	// Path is the file the config was loaded from; empty for defaults.
	Path string `yaml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Paths: PathsConfig{
			SampleDataset: DefaultSampleDatasetDir,
			Uploads:       DefaultUploadsDir,
			Results:       DefaultResultsDir,
		},
		Defaults: DefaultsConfig{
			Engine:    DefaultEngine,
			Languages: []string{DefaultLanguage},
			GPU:       boolPtr(false),
		},
		OCR: OCRConfig{Options: map[string]map[string]any{}},
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
		History: HistoryConfig{Backend: DefaultHistoryBackend},
		Upload:  dataset.DefaultLimits(),
		SessionLog: SessionLogConfig{
			Enabled: boolPtr(false),
			Dir:     DefaultSessionLogDir,
		},
	}
}

// Load finds .ocrlab.yaml by walking up from startDir (max 10 levels),
// validates and unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	path, data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	if errs := validation.ValidateConfigBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("invalid %s:\n  %s", path, strings.Join(errs, "\n  "))
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	mergeConfig(cfg, &fileCfg)
	cfg.Path = path
	return cfg, nil
}

// findConfigFile walks up from dir looking for .ocrlab.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) (string, []byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return p, data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Paths
	if src.Paths.SampleDataset != "" {
		dst.Paths.SampleDataset = src.Paths.SampleDataset
	}
	if src.Paths.Uploads != "" {
		dst.Paths.Uploads = src.Paths.Uploads
	}
	if src.Paths.Results != "" {
		dst.Paths.Results = src.Paths.Results
	}

	// Defaults
	if src.Defaults.Engine != "" {
		dst.Defaults.Engine = src.Defaults.Engine
	}
	if len(src.Defaults.Languages) > 0 {
		dst.Defaults.Languages = src.Defaults.Languages
	}
	if src.Defaults.GPU != nil {
		dst.Defaults.GPU = src.Defaults.GPU
	}

	// OCR options merge per engine.
	for name, opts := range src.OCR.Options {
		dst.OCR.Options[name] = opts
	}

	// Server
	if src.Server.Host != "" {
		dst.Server.Host = src.Server.Host
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if len(src.Server.AllowedOrigins) > 0 {
		dst.Server.AllowedOrigins = src.Server.AllowedOrigins
	}

	// History
	if src.History.Backend != "" {
		dst.History.Backend = src.History.Backend
	}
	if src.History.DSN != "" {
		dst.History.DSN = src.History.DSN
	}

	// Upload
	if src.Upload.MaxFiles != 0 {
		dst.Upload.MaxFiles = src.Upload.MaxFiles
	}
	if src.Upload.MaxImageBytes != 0 {
		dst.Upload.MaxImageBytes = src.Upload.MaxImageBytes
	}
	if src.Upload.MaxLabelsBytes != 0 {
		dst.Upload.MaxLabelsBytes = src.Upload.MaxLabelsBytes
	}

	// Session log
	if src.SessionLog.Enabled != nil {
		dst.SessionLog.Enabled = src.SessionLog.Enabled
	}
	if src.SessionLog.Dir != "" {
		dst.SessionLog.Dir = src.SessionLog.Dir
	}
}

// Resolve makes a relative path relative to the directory holding the
// config file. Paths stay as given when no file was loaded.
func (c *ProjectConfig) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.Path), p)
}

// HistoryTarget returns the directory or DSN handed to history.Open.
func (c *ProjectConfig) HistoryTarget() string {
	switch c.History.Backend {
	case history.BackendSQLite:
		if c.History.DSN != "" {
			return c.Resolve(c.History.DSN)
		}
		return filepath.Join(c.Resolve(c.Paths.Results), DefaultSQLiteFile)
	case history.BackendNone:
		return ""
	default:
		return c.Resolve(c.Paths.Results)
	}
}

// SessionLogDir returns the session log directory, or "" when disabled.
func (c *ProjectConfig) SessionLogDir() string {
	if c.SessionLog.Enabled == nil || !*c.SessionLog.Enabled {
		return ""
	}
	return c.Resolve(c.SessionLog.Dir)
}

func boolPtr(b bool) *bool {
	return &b
}
