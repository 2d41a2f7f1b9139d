package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart EventType = "start"
	EventStop  EventType = "stop"
)

// Record describes one engine run. Stop-only fields are zero on start events.
type Record struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	ExitCode  int       `json:"exit_code"`
	ExitErr   string    `json:"exit_err,omitempty"`
	DumpPath  string    `json:"dump_path,omitempty"`
	Replaced  bool      `json:"replaced"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Reader is implemented by sinks that can read events back.
type Reader interface {
	// Recent returns up to limit newest events, oldest first.
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Multi fans an event out to several sinks. A failing sink does not stop the
// others; their errors are joined.
type Multi struct {
	mu    sync.RWMutex
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: append([]Sink(nil), sinks...)}
}

// Add appends a sink.
func (m *Multi) Add(s Sink) {
	m.mu.Lock()
	m.sinks = append(m.sinks, s)
	m.mu.Unlock()
}

// Len reports the number of sinks.
func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

func (m *Multi) Send(ctx context.Context, e Event) error {
	m.mu.RLock()
	sinks := append([]Sink(nil), m.sinks...)
	m.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Send(ctx, e); err != nil {
			slog.Warn("Failed to send history event", "type", e.Type, "run", e.Record.RunID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reader returns the first sink that can read events back.
func (m *Multi) Reader() (Reader, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks {
		if r, ok := s.(Reader); ok {
			return r, true
		}
	}
	return nil, false
}

// Close closes every sink that implements io.Closer.
func (m *Multi) Close() error {
	m.mu.Lock()
	sinks := m.sinks
	m.sinks = nil
	m.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Table is the default table (or index) name used by the sinks.
const Table = "engine_history"
