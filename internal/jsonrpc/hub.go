package jsonrpc

import (
	"log/slog"
	"sync"

	"github.com/ocrlab/ocrlab/internal/evaluation"
)

// ProgressParams are the params of a run.progress notification.
type ProgressParams struct {
	RunID        string `json:"run_id"`
	Event        string `json:"event"`
	Progress     int    `json:"progress"`
	SampleNum    int    `json:"sample_num,omitempty"`
	TotalSamples int    `json:"total_samples"`
	Filename     string `json:"filename,omitempty"`
	Correct      *bool  `json:"correct,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Hub fans evaluation progress out to the clients that called run.watch.
// Register Publish as a listener on the evaluation service.
type Hub struct {
	mu       sync.RWMutex
	watchers map[*conn]struct{}
	logger   *slog.Logger
}

// NewHub returns a hub with no watchers.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{watchers: make(map[*conn]struct{}), logger: logger}
}

func (h *Hub) watch(c *conn) {
	h.mu.Lock()
	h.watchers[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unwatch(c *conn) {
	h.mu.Lock()
	delete(h.watchers, c)
	h.mu.Unlock()
}

// Watchers returns the number of watching clients.
func (h *Hub) Watchers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

// Publish queues e for every watcher. It never blocks the run: a client
// whose queue is full misses the event and can catch up with run.status.
func (h *Hub) Publish(e evaluation.ProgressEvent) {
	n := &Notification{JSONRPC: version, Method: MethodProgress, Params: progressParams(e)}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.watchers {
		select {
		case c.notes <- n:
		default:
			h.logger.Debug("dropping progress notification", "run_id", e.RunID, "event", e.EventType)
		}
	}
}

func progressParams(e evaluation.ProgressEvent) ProgressParams {
	p := ProgressParams{
		RunID:        e.RunID,
		Event:        string(e.EventType),
		Progress:     e.Progress,
		SampleNum:    e.SampleNum,
		TotalSamples: e.TotalSamples,
		Filename:     e.Filename,
		Message:      e.Message,
	}
	if e.EventType == evaluation.EventSampleComplete {
		correct := e.Correct
		p.Correct = &correct
	}
	return p
}
