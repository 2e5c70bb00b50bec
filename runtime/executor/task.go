package executor

import (
	"context"
	"errors"
	"fmt"
)

// ErrWouldBlock signals that an operation cannot complete yet and the caller
// has been registered for a wake. Task code reacts by returning PollPending.
var ErrWouldBlock = errors.New("operation would block")

// TaskID identifies a task.
type TaskID uint64

func (id TaskID) String() string {
	return fmt.Sprintf("task-%d", uint64(id))
}

// Priority selects the run queue of a task.
type Priority int

const (
	Critical Priority = iota
	Normal
	Background
)

var priorityNames = [...]string{"critical", "normal", "background"}

func (p Priority) String() string {
	if p < Critical || p > Background {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// Valid reports whether p names one of the run queues.
func (p Priority) Valid() bool {
	return p >= Critical && p <= Background
}

// ParsePriority converts a priority name to a Priority.
func ParsePriority(name string) (Priority, error) {
	for i, n := range priorityNames {
		if n == name {
			return Priority(i), nil
		}
	}
	return Normal, fmt.Errorf("unknown priority %q", name)
}

// State is the scheduling state of a task.
type State int

const (
	// StatePending means the task waits for a wake.
	StatePending State = iota
	// StateReady means the task sits in a run queue.
	StateReady
	// StateCompleted means the task finished and was removed.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateCompleted:
		return "completed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Poll is the result of polling a task.
type Poll int

const (
	// PollPending means the task is not done and registered for a wake.
	PollPending Poll = iota
	// PollReady means the task is done.
	PollReady
)

// Task is a unit of suspendable work.
type Task interface {
	Poll(ctx context.Context, w Waker) Poll
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context, w Waker) Poll

// Poll calls f.
func (f TaskFunc) Poll(ctx context.Context, w Waker) Poll {
	return f(ctx, w)
}

// Waker wakes one task. The zero Waker is inert.
type Waker struct {
	id   TaskID
	exec *Executor
}

// ID returns the task the waker belongs to.
func (w Waker) ID() TaskID { return w.id }

// Wake marks the task Ready.
func (w Waker) Wake() {
	if w.exec == nil {
		return
	}
	w.exec.Wake(w.id)
}

// Valid reports whether the waker is bound to a task.
func (w Waker) Valid() bool { return w.exec != nil }

type taskRecord struct {
	id       TaskID
	priority Priority
	state    State
	work     Task
}
