package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/vpnr/internal/future"
	"github.com/loykin/vpnr/internal/history"
	"github.com/loykin/vpnr/internal/process"
	"github.com/loykin/vpnr/internal/status"
)

// memHistory collects history events in memory.
type memHistory struct {
	mu     sync.Mutex
	events []history.Event
}

func (h *memHistory) Send(_ context.Context, e history.Event) error {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
	return nil
}

func (h *memHistory) snapshot() []history.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]history.Event(nil), h.events...)
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh on Unix-like systems")
	}
}

func shSpec(name, script string) process.LaunchSpec {
	return process.LaunchSpec{Name: name, Argv: []string{"/bin/sh", "-c", script}}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func logContains(l *status.Log, text string) bool {
	for _, it := range l.Snapshot() {
		if strings.Contains(it.Text, text) {
			return true
		}
	}
	return false
}

func TestManagerRunRecordsHistoryAndStops(t *testing.T) {
	requireUnix(t)
	hist := &memHistory{}
	var stopped []process.Status
	var mu sync.Mutex
	m := New(WithHistory(hist), OnSessionStopped(func(st process.Status) {
		mu.Lock()
		stopped = append(stopped, st)
		mu.Unlock()
	}))

	p, err := m.Start(context.Background(), shSpec("ok", `echo "1380308330.240114 18000002 hello"`))
	require.NoError(t, err)

	out, err := m.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, process.OutcomeSuccess, out.Kind)
	assert.True(t, logContains(m.Log(), "hello"))

	require.NoError(t, m.Shutdown(waitCtx(t)))
	assert.Equal(t, 1, m.SessionsStopped())
	mu.Lock()
	require.Len(t, stopped, 1)
	assert.Equal(t, p.ID(), stopped[0].RunID)
	mu.Unlock()

	evs := hist.snapshot()
	require.Len(t, evs, 2)
	assert.Equal(t, history.EventStart, evs[0].Type)
	assert.Equal(t, history.EventStop, evs[1].Type)
	assert.Equal(t, p.ID(), evs[0].Record.RunID)
	assert.Equal(t, evs[0].Record.RunID, evs[1].Record.RunID)
	assert.NotZero(t, evs[0].Record.PID)
	assert.Equal(t, "success", evs[1].Record.Outcome)
	assert.False(t, evs[1].Record.StoppedAt.IsZero())
}

func TestManagerReplacesPredecessor(t *testing.T) {
	requireUnix(t)
	hist := &memHistory{}
	log := status.NewLog()
	var states int
	var smu sync.Mutex
	log.OnState(func(status.State) {
		smu.Lock()
		states++
		smu.Unlock()
	})
	m := New(WithStatusLog(log), WithHistory(hist))

	first, err := m.Start(context.Background(), shSpec("first", "sleep 30"))
	require.NoError(t, err)
	_, err = first.AwaitStdin(waitCtx(t))
	require.NoError(t, err)

	second, err := m.Start(waitCtx(t), shSpec("second", "sleep 30"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	st := first.Status()
	assert.True(t, st.Replace)
	assert.Equal(t, process.StateTerminated, st.State)
	// the replaced run neither reports NOPROCESS nor ends the session
	assert.Equal(t, 0, m.SessionsStopped())
	smu.Lock()
	assert.Equal(t, 0, states)
	smu.Unlock()

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, second.ID(), cur.ID())

	require.NoError(t, m.Shutdown(waitCtx(t)))
	assert.Equal(t, 1, m.SessionsStopped())
	smu.Lock()
	assert.Equal(t, 1, states)
	smu.Unlock()

	var replaced int
	for _, e := range hist.snapshot() {
		if e.Type == history.EventStop && e.Record.Replaced {
			replaced++
			assert.Equal(t, first.ID(), e.Record.RunID)
		}
	}
	assert.Equal(t, 1, replaced)
}

func TestSendManagement(t *testing.T) {
	requireUnix(t)
	m := New()
	_, err := m.Start(context.Background(), shSpec("mgmt", `read line; echo "got $line"`))
	require.NoError(t, err)

	require.NoError(t, m.SendManagement(waitCtx(t), "hello"))
	_, err = m.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.True(t, logContains(m.Log(), "P:got hello"))
	require.NoError(t, m.Shutdown(waitCtx(t)))
}

func TestStdinConfigFeed(t *testing.T) {
	requireUnix(t)
	cfg := filepath.Join(t.TempDir(), "client.conf")
	require.NoError(t, os.WriteFile(cfg, []byte("remote vpn.example.com 1194\n"), 0o600))

	m := New()
	spec := shSpec("feed", "cat")
	spec.StdinConfig = cfg
	_, err := m.Start(context.Background(), spec)
	require.NoError(t, err)

	// cat exits once the config is written and stdin closed
	out, err := m.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, process.OutcomeSuccess, out.Kind)
	assert.True(t, logContains(m.Log(), "P:remote vpn.example.com 1194"))

	err = m.SendManagement(waitCtx(t), "signal SIGUSR1")
	assert.ErrorIs(t, err, ErrStdinClosed)
	require.NoError(t, m.Shutdown(waitCtx(t)))
}

func TestStdinConfigMissingStopsEngine(t *testing.T) {
	requireUnix(t)
	m := New()
	spec := shSpec("feed", "sleep 30")
	spec.StdinConfig = filepath.Join(t.TempDir(), "missing.conf")
	_, err := m.Start(context.Background(), spec)
	require.NoError(t, err)

	out, err := m.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, process.OutcomeFailure, out.Kind)
	assert.True(t, logContains(m.Log(), "Error reading engine config"))
	require.NoError(t, m.Shutdown(waitCtx(t)))
}

func TestLaunchFailure(t *testing.T) {
	hist := &memHistory{}
	m := New(WithHistory(hist))
	spec := process.LaunchSpec{Name: "missing", Argv: []string{filepath.Join(t.TempDir(), "no-such-engine")}}
	_, err := m.Start(context.Background(), spec)
	require.NoError(t, err)

	err = m.SendManagement(waitCtx(t), "state")
	assert.ErrorIs(t, err, future.ErrCancelled)

	out, err := m.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, process.OutcomeUnknown, out.Kind)
	require.NoError(t, m.Shutdown(waitCtx(t)))

	assert.Equal(t, 1, m.SessionsStopped())
	assert.Empty(t, hist.snapshot())
	assert.True(t, logContains(m.Log(), "Error launching engine process"))
}

func TestCancelCurrentRun(t *testing.T) {
	requireUnix(t)
	m := New()
	p, err := m.Start(context.Background(), shSpec("cancel", "sleep 30"))
	require.NoError(t, err)
	_, err = p.AwaitStdin(waitCtx(t))
	require.NoError(t, err)

	require.NoError(t, m.Cancel())
	out, err := m.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, process.OutcomeFailure, out.Kind)
	assert.Equal(t, 143, out.Code)

	st, err := m.Status()
	require.NoError(t, err)
	assert.True(t, st.Cancelled)
	require.NoError(t, m.Shutdown(waitCtx(t)))
}

func TestNoSession(t *testing.T) {
	m := New()
	assert.ErrorIs(t, m.Stop(), ErrNoSession)
	assert.ErrorIs(t, m.Cancel(), ErrNoSession)
	_, err := m.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = m.Status()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, m.SendManagement(context.Background(), "x"), ErrNoSession)
	_, ok := m.Current()
	assert.False(t, ok)
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	m := New()
	_, err := m.Start(context.Background(), process.LaunchSpec{})
	assert.True(t, errors.Is(err, process.ErrEmptyArgv))
}

func TestShutdownStopsEngineAndRefusesStart(t *testing.T) {
	requireUnix(t)
	m := New()
	p, err := m.Start(context.Background(), shSpec("long", "sleep 30"))
	require.NoError(t, err)
	_, err = p.AwaitStdin(waitCtx(t))
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(waitCtx(t)))
	o, ok := p.Outcome()
	require.True(t, ok)
	assert.Equal(t, 143, o.Code)

	_, err = m.Start(context.Background(), shSpec("again", "true"))
	assert.ErrorIs(t, err, ErrShuttingDown)
}
