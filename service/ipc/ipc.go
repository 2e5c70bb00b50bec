package ipc

import (
	"errors"

	"github.com/axeberg/axebergos/runtime/executor"
	"github.com/axeberg/axebergos/runtime/object"
)

const (
	KindPipeReader   object.Kind = "pipe.reader"
	KindPipeWriter   object.Kind = "pipe.writer"
	KindMessageQueue object.Kind = "mqueue"
	KindSharedMemory object.Kind = "shm"
)

var (
	// ErrWouldBlock is executor.ErrWouldBlock.
	ErrWouldBlock = executor.ErrWouldBlock
	// ErrBrokenPipe is returned when writing to a pipe without a reader.
	ErrBrokenPipe = errors.New("broken pipe")
	// ErrClosed is returned for operations on a finalized object.
	ErrClosed = errors.New("object closed")
	// ErrOutOfRange is returned for shared memory accesses past the segment.
	ErrOutOfRange = errors.New("access out of range")
)

// Waker is notified when a blocked operation may succeed.
type Waker interface {
	Wake()
}

type waitList []Waker

func (l *waitList) add(w Waker) {
	if w != nil {
		*l = append(*l, w)
	}
}

// take empties the list; callers wake the result outside their lock.
func (l *waitList) take() waitList {
	out := *l
	*l = nil
	return out
}

func (l waitList) wakeAll() {
	for _, w := range l {
		w.Wake()
	}
}
