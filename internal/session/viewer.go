package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// Run log statuses. A log without a final event belongs to a run that was
// reset, interrupted or is still going.
const (
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusIncomplete = "incomplete"
)

// RunLog summarizes one per-run session log.
type RunLog struct {
	Path     string
	Name     string
	RunID    string
	Engine   string
	Status   string
	Samples  int
	Total    int
	Accuracy float64
	Error    string
	Started  time.Time
	Events   int
}

// ListRunLogs summarizes every run log in dir, most recent run first.
func ListRunLogs(dir string) ([]RunLog, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("reading session directory: %w", err)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*-session.jsonl"))
	if err != nil {
		return nil, err
	}

	logs := make([]RunLog, 0, len(paths))
	for _, path := range paths {
		events, err := ReadEvents(path)
		if err != nil {
			return nil, err
		}
		l := Summarize(events)
		l.Path, l.Name = path, filepath.Base(path)
		if l.Started.IsZero() {
			if info, err := os.Stat(path); err == nil {
				l.Started = info.ModTime()
			}
		}
		logs = append(logs, l)
	}
	slices.SortFunc(logs, func(a, b RunLog) int { return b.Started.Compare(a.Started) })
	return logs, nil
}

// Summarize folds the events of one run into a RunLog.
func Summarize(events []Event) RunLog {
	l := RunLog{Status: StatusIncomplete, Events: len(events)}
	for _, ev := range events {
		switch ev.Type {
		case EventRunStart:
			l.RunID = ev.RunID
			l.Started = ev.Timestamp
			l.Engine, _ = ev.Data["engine"].(string) //nolint:errcheck
			l.Total = jsonNumber(ev.Data["total_samples"])
		case EventSampleComplete:
			l.Samples++
		case EventRunComplete:
			l.Status = StatusCompleted
			l.Accuracy = jsonFloat(ev.Data["accuracy"])
		case EventRunFailed:
			l.Status = StatusFailed
			l.Error, _ = ev.Data["message"].(string) //nolint:errcheck
		}
	}
	return l
}

// ReadEvents parses a session log. A last line cut short by an interrupted
// write is dropped; any other malformed line is an error.
func ReadEvents(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}

	lines := bytes.Split(data, []byte{'\n'})
	var events []Event
	for i, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			if i == len(lines)-1 {
				break
			}
			return nil, fmt.Errorf("%s:%d: %w", path, i+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// RenderTimeline writes one run's events followed by its outcome.
//
//nolint:errcheck // display-only writes; errors are not actionable
func RenderTimeline(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, " EVALUATION TIMELINE")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	start := events[0].Timestamp
	for _, ev := range events {
		ts := formatDuration(ev.Timestamp.Sub(start))

		switch ev.Type {
		case EventRunStart:
			engine, _ := ev.Data["engine"].(string) //nolint:errcheck
			total := jsonNumber(ev.Data["total_samples"])
			fmt.Fprintf(w, "[%s] ▶  Run %s started  engine=%s  samples=%d\n", ts, shortID(ev.RunID), engine, total)

		case EventSampleComplete:
			name, _ := ev.Data["filename"].(string)  //nolint:errcheck
			correct, _ := ev.Data["correct"].(bool) //nolint:errcheck
			icon := "✗"
			if correct {
				icon = "✓"
			}
			fmt.Fprintf(w, "[%s]    %s %d/%d %s (%dms)\n", ts, icon,
				jsonNumber(ev.Data["sample_num"]), jsonNumber(ev.Data["total_samples"]), name,
				jsonNumber(ev.Data["duration_ms"]))

		case EventRunComplete:
			fmt.Fprintf(w, "[%s] 🏁 Run complete  %d/%d correct  accuracy=%.2f%%  (%dms)\n", ts,
				jsonNumber(ev.Data["correct_predictions"]), jsonNumber(ev.Data["total_samples"]),
				jsonFloat(ev.Data["accuracy"]), jsonNumber(ev.Data["duration_ms"]))

		case EventRunFailed, EventError:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ❌ Failed: %s\n", ts, msg)

		default:
			fmt.Fprintf(w, "[%s] %s %v\n", ts, ev.Type, ev.Data)
		}
	}

	l := Summarize(events)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Outcome: %s, %d of %d samples evaluated\n", l.Status, l.Samples, l.Total)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%6dms", d.Milliseconds())
	}
	return fmt.Sprintf("%6.1fs", d.Seconds())
}

// jsonNumber extracts an int from a decoded or in-memory event value.
func jsonNumber(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64() //nolint:errcheck
		return int(i)
	}
	return 0
}

func jsonFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64() //nolint:errcheck
		return f
	}
	return 0
}
