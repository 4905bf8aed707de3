package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ocrlab/ocrlab/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaDDL string

// SQLiteStore keeps run history in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at dsn and applies the
// schema. dsn is a file path or ":memory:".
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("history: sqlite dsn is empty")
	}
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", dsn, err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	if err := EnsureSchema(db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// EnsureSchema applies the schema DDL to db.
func EnsureSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("history: db is nil")
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("history: apply schema: %w", err)
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

// Save inserts or replaces rec.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("history: record needs an id")
	}
	langs, err := json.Marshal(rec.Languages)
	if err != nil {
		return err
	}
	var results sql.NullString
	if rec.Results != nil {
		b, err := json.Marshal(rec.Results)
		if err != nil {
			return fmt.Errorf("history: encode results: %w", err)
		}
		results = sql.NullString{String: string(b), Valid: true}
	}
	sum := rec.Summary()

	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (id, dataset, engine, languages, gpu, status, start_time, end_time,
                  accuracy, total_samples, correct_predictions, duration, results, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    dataset = excluded.dataset,
    engine = excluded.engine,
    languages = excluded.languages,
    gpu = excluded.gpu,
    status = excluded.status,
    start_time = excluded.start_time,
    end_time = excluded.end_time,
    accuracy = excluded.accuracy,
    total_samples = excluded.total_samples,
    correct_predictions = excluded.correct_predictions,
    duration = excluded.duration,
    results = excluded.results,
    error = excluded.error`,
		rec.ID, rec.Dataset, rec.Engine, string(langs), rec.GPU, string(rec.Status),
		formatTime(rec.StartTime), formatTime(rec.EndTime),
		sum.Accuracy, sum.TotalSamples, sum.CorrectPredictions, sum.Duration,
		results, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("history: save %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns a single run.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, dataset, engine, languages, gpu, status, start_time, end_time, results, error
FROM runs WHERE id = ?`, id)

	var (
		rec                Record
		langs, status      string
		start, end, errMsg string
		results            sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.Dataset, &rec.Engine, &langs, &rec.GPU, &status, &start, &end, &results, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: get %s: %w", id, err)
	}
	rec.Status = models.JobStatus(status)
	rec.Error = errMsg
	if err := json.Unmarshal([]byte(langs), &rec.Languages); err != nil {
		return nil, fmt.Errorf("history: decode languages of %s: %w", id, err)
	}
	if rec.StartTime, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("history: decode start_time of %s: %w", id, err)
	}
	if rec.EndTime, err = parseTime(end); err != nil {
		return nil, fmt.Errorf("history: decode end_time of %s: %w", id, err)
	}
	if results.Valid {
		rec.Results = &models.Results{}
		if err := json.Unmarshal([]byte(results.String), rec.Results); err != nil {
			return nil, fmt.Errorf("history: decode results of %s: %w", id, err)
		}
	}
	return &rec, nil
}

var sortColumns = map[string]string{
	"start_time": "start_time",
	"accuracy":   "accuracy",
	"duration":   "duration",
	"samples":    "total_samples",
}

// List returns all runs sorted by the given field and order.
func (s *SQLiteStore) List(ctx context.Context, field, order string) ([]Summary, error) {
	col, ok := sortColumns[field]
	if !ok {
		col = "start_time"
	}
	dir := "DESC"
	if order == "asc" {
		dir = "ASC"
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, dataset, engine, status, accuracy, total_samples, correct_predictions, duration, start_time
FROM runs ORDER BY %s %s, id %s`, col, dir, dir))
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []Summary{}
	for rows.Next() {
		var (
			sum           Summary
			status, start string
		)
		if err := rows.Scan(&sum.ID, &sum.Dataset, &sum.Engine, &status, &sum.Accuracy,
			&sum.TotalSamples, &sum.CorrectPredictions, &sum.Duration, &start); err != nil {
			return nil, fmt.Errorf("history: list: %w", err)
		}
		sum.Status = models.JobStatus(status)
		if sum.StartTime, err = parseTime(start); err != nil {
			return nil, fmt.Errorf("history: list: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Stats aggregates all runs.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	var meanAcc sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
SELECT
    COUNT(*),
    COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'completed' THEN total_samples ELSE 0 END), 0),
    AVG(CASE WHEN status = 'completed' THEN accuracy END)
FROM runs`).Scan(&st.TotalRuns, &st.CompletedRuns, &st.FailedRuns, &st.TotalSamples, &meanAcc)
	if err != nil {
		return nil, fmt.Errorf("history: stats: %w", err)
	}
	st.MeanAccuracy = meanAcc.Float64
	return st, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
