package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps one JSON file per run in a directory.
type FileStore struct {
	dir string

	mu     sync.RWMutex
	runs   map[string]*Record
	loaded bool
}

// NewFileStore creates a FileStore over dir. The directory is created on the
// first Save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:  dir,
		runs: make(map[string]*Record),
	}
}

// load reads all result JSON files from the directory. Unreadable files are
// skipped.
func (fs *FileStore) load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.runs = make(map[string]*Record)

	if fs.dir == "" {
		fs.loaded = true
		return nil
	}

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			fs.loaded = true
			return nil
		}
		return err
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(fs.dir, e.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.ID == "" {
			rec.ID = strings.TrimSuffix(e.Name(), ".json")
		}
		fs.runs[rec.ID] = &rec
	}

	fs.loaded = true
	return nil
}

func (fs *FileStore) ensureLoaded() error {
	fs.mu.RLock()
	if fs.loaded {
		fs.mu.RUnlock()
		return nil
	}
	fs.mu.RUnlock()
	return fs.load()
}

// Reload forces a fresh read of the directory.
func (fs *FileStore) Reload() error {
	return fs.load()
}

// Save writes rec to <dir>/<id>.json, replacing any earlier version.
func (fs *FileStore) Save(_ context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("history: record needs an id")
	}
	if strings.ContainsAny(rec.ID, `/\`) || strings.HasPrefix(rec.ID, ".") {
		return fmt.Errorf("history: invalid run id %q", rec.ID)
	}
	if err := fs.ensureLoaded(); err != nil {
		return err
	}
	if fs.dir == "" {
		return fmt.Errorf("history: no results directory configured")
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode %s: %w", rec.ID, err)
	}
	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return fmt.Errorf("history: %w", err)
	}
	tmp, err := os.CreateTemp(fs.dir, ".run-*.tmp")
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return fmt.Errorf("history: write %s: %w", rec.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return fmt.Errorf("history: write %s: %w", rec.ID, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(fs.dir, rec.ID+".json")); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return fmt.Errorf("history: write %s: %w", rec.ID, err)
	}

	cp := *rec
	cp.Results = rec.Results.Clone()
	fs.mu.Lock()
	fs.runs[rec.ID] = &cp
	fs.mu.Unlock()
	return nil
}

// Get returns a single run.
func (fs *FileStore) Get(_ context.Context, id string) (*Record, error) {
	if err := fs.ensureLoaded(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	rec, ok := fs.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *rec
	cp.Results = rec.Results.Clone()
	return &cp, nil
}

// List returns all runs sorted by the given field and order.
func (fs *FileStore) List(_ context.Context, field, order string) ([]Summary, error) {
	if err := fs.ensureLoaded(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	runs := make([]Summary, 0, len(fs.runs))
	for _, r := range fs.runs {
		runs = append(runs, r.Summary())
	}
	fs.mu.RUnlock()

	sortSummaries(runs, field, order)
	return runs, nil
}

// Stats aggregates all runs.
func (fs *FileStore) Stats(_ context.Context) (*Stats, error) {
	if err := fs.ensureLoaded(); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()
	recs := make([]*Record, 0, len(fs.runs))
	for _, r := range fs.runs {
		recs = append(recs, r)
	}
	return statsOf(recs), nil
}

// Close implements Store.
func (fs *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
