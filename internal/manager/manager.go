// Package manager owns the engine session: at most one supervised run at a
// time, handed off to a successor when a new one starts.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/vpnr/internal/history"
	"github.com/loykin/vpnr/internal/metrics"
	"github.com/loykin/vpnr/internal/process"
	"github.com/loykin/vpnr/internal/status"
)

// Manager starts, replaces and stops engine runs and records their history.
type Manager struct {
	log     *status.Log
	hist    history.Sink
	sampler *metrics.EngineSampler
	onStop  []func(process.Status)

	startMu sync.Mutex // serializes Start so handoffs do not interleave

	mu       sync.RWMutex
	cur      *session
	closed   bool
	stopped  int
	watchers sync.WaitGroup

	removeState func()
	samplerStop context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithStatusLog uses l as the status sink for every run.
func WithStatusLog(l *status.Log) Option {
	return func(m *Manager) { m.log = l }
}

// WithHistory records run start/stop events to s.
func WithHistory(s history.Sink) Option {
	return func(m *Manager) { m.hist = s }
}

// WithSampler samples the current engine's resource usage.
func WithSampler(s *metrics.EngineSampler) Option {
	return func(m *Manager) { m.sampler = s }
}

// OnSessionStopped registers fn to run once a session ends for good, i.e.
// not when it was replaced by a successor.
func OnSessionStopped(fn func(process.Status)) Option {
	return func(m *Manager) { m.onStop = append(m.onStop, fn) }
}

func New(opts ...Option) *Manager {
	m := &Manager{}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		m.log = status.NewLog()
	}
	m.removeState = m.log.OnState(func(s status.State) {
		metrics.IncStateUpdate(s.Code, s.Level.String())
	})
	if m.sampler != nil {
		ctx, cancel := context.WithCancel(context.Background())
		m.samplerStop = cancel
		m.sampler.Start(ctx, m.samplerTarget)
	}
	return m
}

// Log returns the status log shared by all runs.
func (m *Manager) Log() *status.Log { return m.log }

// Start launches spec as the new current session. A live predecessor is
// marked as replaced and stopped first; Start waits for it to drain or for
// ctx to end. The run itself is not bound to ctx; use Cancel or Stop.
func (m *Manager) Start(ctx context.Context, spec process.LaunchSpec) (*process.Process, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.mu.RLock()
	prev, closed := m.cur, m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrShuttingDown
	}
	if prev != nil && !prev.finished() {
		slog.Info("Replacing engine session", "run", prev.p.ID())
		prev.p.SetReplaceConnection()
		prev.p.Stop()
		select {
		case <-prev.p.Done():
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for previous engine run: %w", ctx.Err())
		}
	}

	s := newSession(m, spec)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.cancel()
		return nil, ErrShuttingDown
	}
	m.cur = s
	m.mu.Unlock()

	if err := s.p.Start(s.ctx); err != nil {
		s.cancel()
		return nil, err
	}
	m.watchers.Add(1)
	go func() {
		defer m.watchers.Done()
		s.watch()
	}()
	return s.p, nil
}

// Stop asks the current engine to terminate.
func (m *Manager) Stop() error {
	s := m.current()
	if s == nil {
		return ErrNoSession
	}
	s.p.Stop()
	return nil
}

// Cancel cancels the current run's supervision; the read loop ends and the
// engine is stopped.
func (m *Manager) Cancel() error {
	s := m.current()
	if s == nil {
		return ErrNoSession
	}
	s.cancel()
	return nil
}

// Wait blocks until the current run has drained and returns its outcome.
func (m *Manager) Wait(ctx context.Context) (process.ExitOutcome, error) {
	s := m.current()
	if s == nil {
		return process.ExitOutcome{}, ErrNoSession
	}
	select {
	case <-s.p.Done():
		o, _ := s.p.Outcome()
		return o, nil
	case <-ctx.Done():
		return process.ExitOutcome{}, ctx.Err()
	}
}

// Current returns the current or most recent run.
func (m *Manager) Current() (*process.Process, bool) {
	s := m.current()
	if s == nil {
		return nil, false
	}
	return s.p, true
}

// Status returns a snapshot of the current or most recent run.
func (m *Manager) Status() (process.Status, error) {
	s := m.current()
	if s == nil {
		return process.Status{}, ErrNoSession
	}
	return s.p.Status(), nil
}

// SendManagement writes one line to the engine's stdin, waiting for the
// engine to be launched first.
func (m *Manager) SendManagement(ctx context.Context, line string) error {
	s := m.current()
	if s == nil {
		return ErrNoSession
	}
	return s.writeLine(ctx, line)
}

// SessionsStopped counts sessions that ended without being replaced.
func (m *Manager) SessionsStopped() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopped
}

// Shutdown refuses new runs, stops the current one and waits until it and
// the bookkeeping goroutines are done, or ctx ends. On ctx expiry the run's
// supervision is cancelled.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	s := m.cur
	m.mu.Unlock()

	var err error
	if s != nil && !s.finished() {
		s.p.Stop()
		select {
		case <-s.p.Done():
		case <-ctx.Done():
			err = ctx.Err()
			s.cancel()
			<-s.p.Done()
		}
	}
	m.watchers.Wait()
	if m.samplerStop != nil {
		m.samplerStop()
		m.sampler.Stop()
	}
	if m.removeState != nil {
		m.removeState()
	}
	return err
}

func (m *Manager) current() *session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

func (m *Manager) samplerTarget() (string, int32) {
	s := m.current()
	if s == nil || s.finished() {
		return "", 0
	}
	pid := s.p.PID()
	if pid <= 0 {
		return "", 0
	}
	return s.p.Spec().DisplayName(), int32(pid)
}

// sessionStopped is the process.Owner callback of every run.
func (m *Manager) sessionStopped(p *process.Process) {
	m.mu.Lock()
	m.stopped++
	m.mu.Unlock()

	st := p.Status()
	slog.Info("Engine session stopped", "run", st.RunID, "name", st.Name)
	// onStop is fixed after New
	for _, fn := range m.onStop {
		fn(st)
	}
}

func (m *Manager) record(typ history.EventType, st process.Status) {
	if m.hist == nil {
		return
	}
	rec := history.Record{
		RunID:     st.RunID,
		Name:      st.Name,
		PID:       st.PID,
		StartedAt: st.StartedAt,
		DumpPath:  st.DumpPath,
		Replaced:  st.Replace,
	}
	if typ == history.EventStop {
		rec.StoppedAt = st.StoppedAt
		if o := st.Outcome; o != nil {
			rec.Outcome = o.Kind.String()
			rec.ExitCode = o.Code
			if o.Err != nil {
				rec.ExitErr = o.Err.Error()
			}
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Multi logs failures itself; other sinks get logged here
	if err := m.hist.Send(ctx, history.Event{Type: typ, OccurredAt: time.Now().UTC(), Record: rec}); err != nil {
		if _, multi := m.hist.(*history.Multi); !multi {
			slog.Warn("Failed to record engine history", "type", typ, "run", rec.RunID, "error", err)
		}
	}
}
