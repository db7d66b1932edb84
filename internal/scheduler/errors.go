package scheduler

import "errors"

var (
	ErrAlreadyActive = errors.New("notification loop already active")
	ErrNotActive     = errors.New("no active notification loop")
	ErrShuttingDown  = errors.New("scheduler is shutting down")

	// Cancellation causes, visible through context.Cause inside a loop.
	ErrLoopStopped = errors.New("loop stopped by user")
	ErrShutdown    = errors.New("process shutting down")

	errReplaced = errors.New("replaced by a newer request")
)
