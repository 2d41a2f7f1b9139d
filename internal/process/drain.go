package process

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/vpnr/internal/metrics"
	"github.com/loykin/vpnr/internal/status"
)

// drain runs once per run, after the read loop, whatever ended it.
func (p *Process) drain() {
	p.mu.Lock()
	p.state = StateDraining
	out := p.out
	p.out = nil
	p.mu.Unlock()

	// Unread output must not keep a stopping engine blocked on a full pipe.
	if out != nil {
		_ = out.Close()
	}
	outcome := p.wait()
	name := p.spec.DisplayName()

	switch {
	case outcome.Kind == OutcomeFailure:
		p.sink.LogError(fmt.Sprintf("Process exited with exit value %d", outcome.Code))
	case outcome.Kind == OutcomeUnknown && p.PID() != 0:
		p.sink.LogException("Error waiting for engine process", outcome.Err)
	}

	p.mu.Lock()
	replace := p.replace
	dumpPath := p.dumpPath
	raw := p.raw
	p.raw = nil
	p.stoppedAt = time.Now()
	startedAt := p.startedAt
	p.mu.Unlock()

	if raw != nil {
		_ = raw.Close()
	}

	if !replace {
		p.sink.UpdateState(status.NoProcess())
	}
	if dumpPath != "" {
		p.renderDump(dumpPath)
	}

	p.mu.Lock()
	p.outcome = &outcome
	p.mu.Unlock()

	metrics.IncExit(name, outcome.Kind.String())
	if !startedAt.IsZero() {
		metrics.SetRunning(name, false)
		metrics.ObserveRunDuration(name, time.Since(startedAt).Seconds())
	}
	slog.Info("Engine run finished", "run", p.id, "name", name, "outcome", outcome.String(), "replaced", replace)

	if !replace && p.owner != nil {
		p.owner.SessionStopped()
	}

	p.mu.Lock()
	p.state = StateTerminated
	p.mu.Unlock()
}

// wait reaps the engine with a single Wait call and no deadline of its own;
// only a Stop arms the kill escalation.
func (p *Process) wait() ExitOutcome {
	p.mu.Lock()
	cmd := p.cmd
	launchErr := p.launchErr
	p.mu.Unlock()
	if cmd == nil {
		if launchErr == nil {
			launchErr = ErrNotStarted
		}
		return ExitOutcome{Kind: OutcomeUnknown, Code: -1, Err: launchErr}
	}

	err := cmd.Wait()
	p.mu.Lock()
	p.exited = true
	if p.killTimer != nil {
		p.killTimer.Stop()
	}
	p.mu.Unlock()
	return outcomeOf(err)
}
