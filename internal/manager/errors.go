package manager

import "errors"

var (
	// ErrNoSession is returned when an operation needs a current engine run.
	ErrNoSession = errors.New("no engine session")
	// ErrShuttingDown is returned by Start after Shutdown.
	ErrShuttingDown = errors.New("manager is shutting down")
	// ErrStdinClosed is returned by SendManagement once the engine's input
	// was closed, e.g. after feeding it a config file.
	ErrStdinClosed = errors.New("engine stdin closed")
)
