package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// RunState is the supervisor state of one run.
type RunState int

const (
	StateStarting RunState = iota
	StateRunning
	StateDraining
	StateTerminated
)

func (s RunState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("RunState(%d)", int(s))
}

func (s RunState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *RunState) UnmarshalText(b []byte) error {
	for _, c := range []RunState{StateStarting, StateRunning, StateDraining, StateTerminated} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", b)
}

// OutcomeKind classifies how an engine run ended.
type OutcomeKind int

const (
	OutcomeUnknown OutcomeKind = iota
	OutcomeSuccess
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

func (k OutcomeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *OutcomeKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "success":
		*k = OutcomeSuccess
	case "failure":
		*k = OutcomeFailure
	default:
		*k = OutcomeUnknown
	}
	return nil
}

// ExitOutcome is produced exactly once per run, after the read loop ends.
// Code is -1 when Kind is OutcomeUnknown; Err holds the launch or wait error.
type ExitOutcome struct {
	Kind OutcomeKind
	Code int
	Err  error
}

func (o ExitOutcome) MarshalJSON() ([]byte, error) {
	v := struct {
		Kind  OutcomeKind `json:"kind"`
		Code  int         `json:"code"`
		Error string      `json:"error,omitempty"`
	}{Kind: o.Kind, Code: o.Code}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return json.Marshal(v)
}

// UnmarshalJSON restores an outcome sent over the wire; Err keeps only the message.
func (o *ExitOutcome) UnmarshalJSON(b []byte) error {
	var v struct {
		Kind  OutcomeKind `json:"kind"`
		Code  int         `json:"code"`
		Error string      `json:"error"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = ExitOutcome{Kind: v.Kind, Code: v.Code}
	if v.Error != "" {
		o.Err = errors.New(v.Error)
	}
	return nil
}

func (o ExitOutcome) String() string {
	if o.Kind == OutcomeUnknown && o.Err != nil {
		return "unknown: " + o.Err.Error()
	}
	return fmt.Sprintf("%s (%d)", o.Kind, o.Code)
}

// outcomeOf converts the result of exec.Cmd.Wait. Death by signal maps to
// 128+signal, the convention shells use.
func outcomeOf(err error) ExitOutcome {
	if err == nil {
		return ExitOutcome{Kind: OutcomeSuccess}
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return ExitOutcome{Kind: OutcomeFailure, Code: 128 + int(ws.Signal()), Err: err}
		}
		return ExitOutcome{Kind: OutcomeFailure, Code: ee.ExitCode(), Err: err}
	}
	return ExitOutcome{Kind: OutcomeUnknown, Code: -1, Err: err}
}

// Status is a point-in-time view of a run.
type Status struct {
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	State     RunState     `json:"state"`
	PID       int          `json:"pid"`
	StartedAt time.Time    `json:"started_at"`
	StoppedAt time.Time    `json:"stopped_at"`
	Replace   bool         `json:"replace_connection"`
	Cancelled bool         `json:"cancelled"`
	DumpPath  string       `json:"dump_path,omitempty"`
	Outcome   *ExitOutcome `json:"outcome,omitempty"`
}
