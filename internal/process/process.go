// Package process supervises one engine run: launch with the computed
// library environment, classify the merged output line by line, and drain
// (wait, report, dump, notify) however the read loop ends.
package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/vpnr/internal/env"
	"github.com/loykin/vpnr/internal/future"
	"github.com/loykin/vpnr/internal/metrics"
	"github.com/loykin/vpnr/internal/status"
)

// Owner is told once per run that the session has fully stopped, unless the
// run was marked as replaced.
type Owner interface {
	SessionStopped()
}

// OwnerFunc adapts a func to Owner.
type OwnerFunc func()

func (f OwnerFunc) SessionStopped() { f() }

// Process owns at most one engine child for its lifetime. Use New for every
// run; a Process cannot be restarted.
type Process struct {
	id    string
	spec  LaunchSpec
	sink  status.Sink
	owner Owner
	stdin *future.Future[io.WriteCloser]

	claimed atomic.Bool
	done    chan struct{}

	mu            sync.Mutex
	cmd           *exec.Cmd
	out           *os.File       // read end of the merged stdout/stderr pipe
	raw           io.WriteCloser // optional copy of engine output
	state         RunState
	startedAt     time.Time
	stoppedAt     time.Time
	stopRequested bool
	exited        bool
	killTimer     *time.Timer
	replace       bool
	cancelled     bool
	dumpPath      string
	launchErr     error
	outcome       *ExitOutcome
}

// New prepares a run of spec reporting to sink. owner may be nil.
func New(spec LaunchSpec, sink status.Sink, owner Owner) *Process {
	return &Process{
		id:    uuid.NewString(),
		spec:  spec,
		sink:  sink,
		owner: owner,
		stdin: future.New[io.WriteCloser](),
		done:  make(chan struct{}),
		state: StateStarting,
	}
}

// ID is the unique run identifier.
func (p *Process) ID() string { return p.id }

func (p *Process) Spec() LaunchSpec { return p.spec }

// Done is closed once the run is terminated.
func (p *Process) Done() <-chan struct{} { return p.done }

// Start runs the supervisor on its own goroutine.
func (p *Process) Start(ctx context.Context) error {
	if !p.claimed.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	go p.run(ctx)
	return nil
}

// Run supervises the engine on the calling goroutine and returns once the
// drain phase has finished.
func (p *Process) Run(ctx context.Context) ExitOutcome {
	if !p.claimed.CompareAndSwap(false, true) {
		return ExitOutcome{Kind: OutcomeUnknown, Code: -1, Err: ErrAlreadyRun}
	}
	p.run(ctx)
	o, _ := p.Outcome()
	return o
}

// Stop asks the engine to terminate. It does not end the read loop by itself;
// the loop ends when the engine closes its output. Stop is safe to call at
// any time: before launch it makes the run terminate the engine as soon as
// it starts, after exit it does nothing. With a WaitTimeout the engine group
// is killed if it is still alive that long after the first Stop.
func (p *Process) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopRequested = true
	if p.cmd == nil || p.cmd.Process == nil || p.exited {
		return
	}
	pid := p.cmd.Process.Pid
	if err := terminate(pid); err != nil {
		slog.Debug("Failed to signal engine", "run", p.id, "pid", pid, "error", err)
	}
	p.armKillLocked(pid)
}

// armKillLocked starts the SIGKILL escalation timer once. Callers hold p.mu.
func (p *Process) armKillLocked(pid int) {
	d := p.spec.WaitTimeout
	if d <= 0 || p.killTimer != nil {
		return
	}
	p.killTimer = time.AfterFunc(d, func() {
		p.mu.Lock()
		if p.exited {
			p.mu.Unlock()
			return
		}
		err := kill(pid)
		p.mu.Unlock()
		p.sink.LogError(fmt.Sprintf("Engine did not exit within %s, killing it", d))
		if err != nil {
			slog.Debug("Failed to kill engine", "run", p.id, "pid", pid, "error", err)
		}
	})
}

// AwaitStdin blocks until the engine's input stream is available, the run
// fails before providing one, or ctx ends.
func (p *Process) AwaitStdin(ctx context.Context) (io.WriteCloser, error) {
	return p.stdin.Await(ctx)
}

// SetReplaceConnection marks the run as being handed off to a successor: the
// drain phase then reports no terminal state and does not notify the owner.
func (p *Process) SetReplaceConnection() {
	p.mu.Lock()
	p.replace = true
	p.mu.Unlock()
}

// PID of the engine, 0 before launch or after a launch failure.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *Process) State() RunState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Outcome returns the exit outcome once the run has drained.
func (p *Process) Outcome() (ExitOutcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outcome == nil {
		return ExitOutcome{}, false
	}
	return *p.outcome, true
}

// Status returns a snapshot of the run.
func (p *Process) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		RunID:     p.id,
		Name:      p.spec.DisplayName(),
		State:     p.state,
		StartedAt: p.startedAt,
		StoppedAt: p.stoppedAt,
		Replace:   p.replace,
		Cancelled: p.cancelled,
		DumpPath:  p.dumpPath,
	}
	if p.cmd != nil && p.cmd.Process != nil {
		st.PID = p.cmd.Process.Pid
	}
	if p.outcome != nil {
		o := *p.outcome
		st.Outcome = &o
	}
	return st
}

func (p *Process) run(ctx context.Context) {
	defer close(p.done)
	p.supervise(ctx)
}

// supervise is the whole lifecycle. drain is deferred first so it runs after
// panic recovery, on every path out of the read loop.
func (p *Process) supervise(ctx context.Context) {
	defer p.drain()
	defer func() {
		if r := recover(); r != nil {
			p.sink.LogError(fmt.Sprintf("Engine supervisor panic: %v", r))
			p.abort()
		}
	}()

	if err := p.launch(); err != nil {
		p.mu.Lock()
		p.launchErr = err
		p.mu.Unlock()
		p.sink.LogException("Error launching engine process", err)
		p.stdin.Cancel(err)
		metrics.IncLaunchFailure(p.spec.DisplayName())
		return
	}
	p.readLoop(ctx)
}

// launch starts the engine with stdout and stderr sharing one pipe and
// publishes its stdin.
func (p *Process) launch() error {
	if err := p.spec.Validate(); err != nil {
		return err
	}

	// configured pairs become part of the base the library path extends
	e := env.New()
	e.SetPairs(p.spec.Env)
	e.ApplyLaunch(p.spec.Exe(), p.spec.NativeLibDir, p.spec.TmpDir)

	cmd := p.spec.BuildCommand()
	cmd.Env = e.Merge(nil)
	configureSysProcAttr(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return err
	}
	// the child holds its own copy; ours must go so EOF arrives on exit
	_ = pw.Close()

	name := p.spec.DisplayName()
	p.mu.Lock()
	p.cmd = cmd
	p.out = pr
	p.raw = p.spec.OutputLog.OutputWriter(name)
	p.startedAt = time.Now()
	p.state = StateRunning
	stop := p.stopRequested
	p.mu.Unlock()

	_ = p.stdin.Resolve(stdin)
	metrics.IncStart(name)
	metrics.SetRunning(name, true)
	slog.Info("Engine started", "run", p.id, "name", name, "pid", cmd.Process.Pid)

	if stop {
		p.Stop()
	}
	return nil
}

// abort ends a run early: pending stdin waiters fail and the engine is asked
// to stop.
func (p *Process) abort() {
	p.stdin.Cancel(ErrCancelled)
	p.Stop()
}
