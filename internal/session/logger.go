package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger records evaluation lifecycle events.
type Logger interface {
	Log(event Event) error
	Close() error
}

// JSONLogger appends events to a file as newline-delimited JSON.
type JSONLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	path string
}

// NewJSONLogger creates a logger that writes NDJSON to the given path.
// Parent directories are created automatically.
func NewJSONLogger(path string) (*JSONLogger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating session log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}

	return &JSONLogger{
		file: f,
		enc:  json.NewEncoder(f),
		path: path,
	}, nil
}

// Log writes a single event as one JSON line.
func (l *JSONLogger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(event)
}

// Close flushes and closes the underlying file.
func (l *JSONLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Path returns the file path of the session log.
func (l *JSONLogger) Path() string {
	return l.path
}

// NopLogger discards all events.
type NopLogger struct{}

// Log is a no-op.
func (NopLogger) Log(Event) error { return nil }

// Close is a no-op.
func (NopLogger) Close() error { return nil }

// RunLogPath returns a timestamped session log path for runID inside dir.
func RunLogPath(dir, runID string) string {
	ts := time.Now().UTC().Format("20060102T150405Z")
	name := ts + "-session.jsonl"
	if runID != "" {
		name = fmt.Sprintf("%s-%s-session.jsonl", ts, shortID(runID))
	}
	return filepath.Join(dir, name)
}

// DirLogger writes each run to its own file in Dir. The file is created by
// the run's first event and closed by its final one.
type DirLogger struct {
	Dir string

	mu  sync.Mutex
	cur *JSONLogger
}

// Log implements Logger.
func (l *DirLogger) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Type == EventRunStart && l.cur != nil {
		l.cur.Close() //nolint:errcheck
		l.cur = nil
	}
	if l.cur == nil {
		cur, err := NewJSONLogger(RunLogPath(l.Dir, event.RunID))
		if err != nil {
			return err
		}
		l.cur = cur
	}

	err := l.cur.Log(event)
	if event.Type == EventRunComplete || event.Type == EventRunFailed {
		err = errors.Join(err, l.cur.Close())
		l.cur = nil
	}
	return err
}

// Close closes the file of an unfinished run.
func (l *DirLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur == nil {
		return nil
	}
	err := l.cur.Close()
	l.cur = nil
	return err
}

// Open returns a DirLogger for dir, or a NopLogger when dir is empty.
func Open(dir string) (Logger, error) {
	if dir == "" {
		return NopLogger{}, nil
	}
	return &DirLogger{Dir: dir}, nil
}
