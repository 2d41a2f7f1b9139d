package manager

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/loykin/vpnr/internal/history"
	"github.com/loykin/vpnr/internal/process"
)

// session is one run plus the manager-side plumbing around it.
type session struct {
	m      *Manager
	p      *process.Process
	ctx    context.Context
	cancel context.CancelFunc

	fed chan struct{} // closed once the stdin config feed is settled

	wmu         sync.Mutex
	stdinClosed bool
}

func newSession(m *Manager, spec process.LaunchSpec) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{m: m, ctx: ctx, cancel: cancel, fed: make(chan struct{})}
	s.p = process.New(spec, m.log, process.OwnerFunc(func() { m.sessionStopped(s.p) }))
	return s
}

func (s *session) finished() bool {
	select {
	case <-s.p.Done():
		return true
	default:
		return false
	}
}

// watch records history and feeds the stdin config for the lifetime of the
// run. The stdin future always completes: launch resolves or cancels it.
func (s *session) watch() {
	defer s.cancel()

	w, err := s.p.AwaitStdin(context.Background())
	if err == nil {
		s.m.record(history.EventStart, s.p.Status())
		if path := s.p.Spec().StdinConfig; path != "" {
			s.feedConfig(w, path)
		}
	}
	close(s.fed)

	<-s.p.Done()
	if err == nil {
		s.m.record(history.EventStop, s.p.Status())
	}
}

// feedConfig writes the config file to the engine and closes its stdin.
func (s *session) feedConfig(w io.WriteCloser, path string) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
	if err != nil {
		s.m.log.LogException("Error reading engine config", err)
		s.p.Stop()
		return
	}
	if _, err := w.Write(data); err != nil {
		s.m.log.LogException("Error writing config to engine", err)
	}
	if err := w.Close(); err != nil {
		s.m.log.LogException("Error closing engine stdin", err)
	}
	s.stdinClosed = true
}

func (s *session) writeLine(ctx context.Context, line string) error {
	w, err := s.p.AwaitStdin(ctx)
	if err != nil {
		return err
	}
	select {
	case <-s.fed:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.stdinClosed {
		return ErrStdinClosed
	}
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := io.WriteString(w, line); err != nil {
		return fmt.Errorf("write to engine stdin: %w", err)
	}
	return nil
}
