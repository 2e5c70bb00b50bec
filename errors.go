package axebergos

import (
	"errors"

	"github.com/axeberg/axebergos/runtime/executor"
)

var (
	// ErrWouldBlock asks the calling task to return executor.PollPending.
	ErrWouldBlock = executor.ErrWouldBlock
	// ErrNotSupported is returned when a descriptor's object does not
	// implement the requested operation.
	ErrNotSupported = errors.New("operation not supported")
	// ErrInvalidTask is returned for nil tasks.
	ErrInvalidTask = errors.New("invalid task")
)
