package proc

import "errors"

var (
	// ErrNoSuchProcess is returned for unknown pids and for reaping a process
	// that is not a zombie.
	ErrNoSuchProcess = errors.New("no such process")
	// ErrInvalidTransition is returned for transitions outside the legal table.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrProcessLimit is returned when the process table is full.
	ErrProcessLimit = errors.New("process limit reached")
	// ErrNotChild is returned when the caller is not the parent of the target.
	// It always comes wrapped together with ErrNoSuchProcess.
	ErrNotChild = errors.New("not a child of caller")
	// ErrNoChild is returned by wait-style lookups when the caller has no
	// matching child.
	ErrNoChild = errors.New("no child processes")
	// ErrBadFD is returned for unknown descriptors.
	ErrBadFD = errors.New("bad file descriptor")
	// ErrExited is returned for descriptor operations on a zombie.
	ErrExited = errors.New("process has exited")
)
