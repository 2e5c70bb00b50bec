package axebergos

import (
	"errors"
	"fmt"

	"github.com/axeberg/axebergos/runtime/object"
	"github.com/axeberg/axebergos/runtime/proc"
	"github.com/axeberg/axebergos/runtime/signal"
	"github.com/axeberg/axebergos/service/ipc"
)

// Install inserts obj into the object table and attaches it to pid.
func (k *Kernel) Install(pid proc.Pid, obj object.Object) (proc.FD, error) {
	h, err := k.objects.Insert(obj)
	if err != nil {
		return 0, err
	}
	fd, err := k.procs.Attach(pid, h)
	if err != nil {
		if rErr := k.objects.Release(h); rErr != nil {
			k.logger.Warn("failed to release", "handle", h, "error", rErr)
		}
		return 0, err
	}
	return fd, nil
}

// Object returns the object behind fd.
func (k *Kernel) Object(pid proc.Pid, fd proc.FD) (object.Object, error) {
	h, err := k.procs.Lookup(pid, fd)
	if err != nil {
		return nil, err
	}
	obj, ok := k.objects.Get(h)
	if !ok {
		return nil, fmt.Errorf("%w: %v", object.ErrInvalidHandle, h)
	}
	return obj, nil
}

func objectAs[T object.Object](k *Kernel, pid proc.Pid, fd proc.FD) (T, error) {
	var zero T
	obj, err := k.Object(pid, fd)
	if err != nil {
		return zero, err
	}
	ret, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %v is %v", ErrNotSupported, fd, obj.Kind())
	}
	return ret, nil
}

// Close releases fd.
func (k *Kernel) Close(pid proc.Pid, fd proc.FD) error {
	return k.procs.Close(pid, fd)
}

// Dup duplicates fd under the lowest free descriptor.
func (k *Kernel) Dup(pid proc.Pid, fd proc.FD) (proc.FD, error) {
	return k.procs.Dup(pid, fd)
}

// Share attaches to process to a new descriptor referring to the object
// behind fd of from.
func (k *Kernel) Share(from proc.Pid, fd proc.FD, to proc.Pid) (proc.FD, error) {
	h, err := k.procs.Lookup(from, fd)
	if err != nil {
		return 0, err
	}
	if err := k.objects.Retain(h); err != nil {
		return 0, err
	}
	target, err := k.procs.Attach(to, h)
	if err != nil {
		if rErr := k.objects.Release(h); rErr != nil {
			k.logger.Warn("failed to release", "handle", h, "error", rErr)
		}
		return 0, err
	}
	return target, nil
}

// Pipe creates a pipe owned by pid and returns its read and write ends.
func (k *Kernel) Pipe(pid proc.Pid) (reader, writer proc.FD, err error) {
	r, w := ipc.NewPipe(k.config.Pipe.Capacity)
	if reader, err = k.Install(pid, r); err != nil {
		r.Finalize()
		w.Finalize()
		return 0, 0, err
	}
	if writer, err = k.Install(pid, w); err != nil {
		w.Finalize()
		if cErr := k.Close(pid, reader); cErr != nil {
			k.logger.Warn("failed to close", "pid", pid, "fd", reader, "error", cErr)
		}
		return 0, 0, err
	}
	return reader, writer, nil
}

// Read reads from a pipe reader. An empty pipe registers waker and returns
// ErrWouldBlock; once the writer is closed and the buffer drained it
// returns io.EOF.
func (k *Kernel) Read(pid proc.Pid, fd proc.FD, buf []byte, waker ipc.Waker) (int, error) {
	r, err := objectAs[*ipc.PipeReader](k, pid, fd)
	if err != nil {
		return 0, err
	}
	return r.Read(buf, waker)
}

// Write writes to a pipe writer. Writing without a reader raises SIGPIPE
// for pid and returns ipc.ErrBrokenPipe.
func (k *Kernel) Write(pid proc.Pid, fd proc.FD, buf []byte, waker ipc.Waker) (int, error) {
	w, err := objectAs[*ipc.PipeWriter](k, pid, fd)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf, waker)
	if errors.Is(err, ipc.ErrBrokenPipe) {
		if sErr := k.signals.Send(pid, signal.Pipe); sErr != nil {
			k.logger.Debug("sigpipe dropped", "pid", pid, "error", sErr)
		}
	}
	return n, err
}

// MessageQueue creates a message queue owned by pid.
func (k *Kernel) MessageQueue(pid proc.Pid) (proc.FD, error) {
	q := ipc.NewMessageQueue(k.config.MessageQueue.Capacity)
	fd, err := k.Install(pid, q)
	if err != nil {
		q.Finalize()
	}
	return fd, err
}

// SendMessage enqueues body on the queue behind fd.
func (k *Kernel) SendMessage(pid proc.Pid, fd proc.FD, body []byte, waker ipc.Waker) error {
	q, err := objectAs[*ipc.MessageQueue](k, pid, fd)
	if err != nil {
		return err
	}
	return q.Send(ipc.Message{Sender: int(pid), Body: body}, waker)
}

// ReceiveMessage dequeues the oldest message of the queue behind fd.
func (k *Kernel) ReceiveMessage(pid proc.Pid, fd proc.FD, waker ipc.Waker) (ipc.Message, error) {
	q, err := objectAs[*ipc.MessageQueue](k, pid, fd)
	if err != nil {
		return ipc.Message{}, err
	}
	return q.Receive(waker)
}

// SharedMemory creates a zeroed segment of size bytes owned by pid.
func (k *Kernel) SharedMemory(pid proc.Pid, size int) (proc.FD, error) {
	if size <= 0 {
		return 0, fmt.Errorf("invalid segment size: %d", size)
	}
	return k.Install(pid, ipc.NewSharedMemory(size))
}

// ReadAt copies from the segment behind fd.
func (k *Kernel) ReadAt(pid proc.Pid, fd proc.FD, buf []byte, off int) (int, error) {
	s, err := objectAs[*ipc.SharedMemory](k, pid, fd)
	if err != nil {
		return 0, err
	}
	return s.ReadAt(buf, off)
}

// WriteAt copies into the segment behind fd.
func (k *Kernel) WriteAt(pid proc.Pid, fd proc.FD, buf []byte, off int) (int, error) {
	s, err := objectAs[*ipc.SharedMemory](k, pid, fd)
	if err != nil {
		return 0, err
	}
	return s.WriteAt(buf, off)
}
