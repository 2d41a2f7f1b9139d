package process

import "errors"

var (
	// ErrEmptyArgv is reported when a LaunchSpec has no executable.
	ErrEmptyArgv = errors.New("launch spec has no executable")
	// ErrAlreadyRun is returned when Run or Start is called on a used Process.
	ErrAlreadyRun = errors.New("engine process already run")
	// ErrNotStarted is returned by accessors that need a launched engine.
	ErrNotStarted = errors.New("engine process not started")
	// ErrCancelled marks a run whose read loop was ended by its context.
	ErrCancelled = errors.New("engine supervision cancelled")
)
