package proc

import (
	"fmt"

	"github.com/axeberg/axebergos/runtime/object"
)

// liveLocked returns a non-zombie record for pid; caller holds t.mu.
func (t *Table) liveLocked(pid Pid) (*process, error) {
	p, err := t.loadLocked(pid)
	if err != nil {
		return nil, err
	}
	if p.state.Is(Zombie) {
		return nil, fmt.Errorf("%w: %v", ErrExited, pid)
	}
	return p, nil
}

// Attach installs h under the lowest free descriptor of pid. The process
// takes over the caller's reference to h.
func (t *Table) Attach(pid Pid, h object.Handle) (FD, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.liveLocked(pid)
	if err != nil {
		return 0, err
	}
	fd := p.lowestFreeFD()
	p.fds[fd] = h
	return fd, nil
}

// Lookup returns the handle behind fd.
func (t *Table) Lookup(pid Pid, fd FD) (object.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.liveLocked(pid)
	if err != nil {
		return object.None, err
	}
	h, ok := p.fds[fd]
	if !ok {
		return object.None, fmt.Errorf("%w: %v %v", ErrBadFD, pid, fd)
	}
	return h, nil
}

// Detach removes fd and hands its reference back to the caller.
func (t *Table) Detach(pid Pid, fd FD) (object.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.liveLocked(pid)
	if err != nil {
		return object.None, err
	}
	h, ok := p.fds[fd]
	if !ok {
		return object.None, fmt.Errorf("%w: %v %v", ErrBadFD, pid, fd)
	}
	delete(p.fds, fd)
	return h, nil
}

// Close removes fd and releases its handle.
func (t *Table) Close(pid Pid, fd FD) error {
	h, err := t.Detach(pid, fd)
	if err != nil {
		return err
	}
	if t.objects == nil {
		return nil
	}
	return t.objects.Release(h)
}

// Dup retains the handle behind fd and installs it again under the lowest
// free descriptor.
func (t *Table) Dup(pid Pid, fd FD) (FD, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.liveLocked(pid)
	if err != nil {
		return 0, err
	}
	h, ok := p.fds[fd]
	if !ok {
		return 0, fmt.Errorf("%w: %v %v", ErrBadFD, pid, fd)
	}
	if t.objects != nil {
		if err := t.objects.Retain(h); err != nil {
			return 0, err
		}
	}
	newFD := p.lowestFreeFD()
	p.fds[newFD] = h
	return newFD, nil
}
