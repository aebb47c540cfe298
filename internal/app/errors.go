package app

import "errors"

var (
	// ErrAlreadyRunning is returned when starting a running component
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning is returned when stopping a component that is not running
	ErrNotRunning = errors.New("not running")

	// ErrJobNotExecuting is returned when a retry targets a job that holds no slot
	ErrJobNotExecuting = errors.New("job is not executing")
)
