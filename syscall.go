package axebergos

import (
	"fmt"

	"github.com/axeberg/axebergos/runtime/executor"
	"github.com/axeberg/axebergos/runtime/object"
	"github.com/axeberg/axebergos/runtime/proc"
	"github.com/axeberg/axebergos/runtime/signal"
)

// SpawnOptions describes a new process.
type SpawnOptions struct {
	Name string
	// Inherit lists descriptors of the parent that the child receives as
	// descriptors 0..n-1.
	Inherit []proc.FD
}

// Spawn creates a child of parent whose main task is task. The process exits
// with code 0 when its main task completes.
func (k *Kernel) Spawn(parent proc.Pid, priority executor.Priority, task Task, opts SpawnOptions) (proc.Pid, error) {
	if task == nil {
		return 0, ErrInvalidTask
	}
	var handles []object.Handle
	for _, fd := range opts.Inherit {
		h, err := k.procs.Lookup(parent, fd)
		if err != nil {
			return 0, fmt.Errorf("failed to inherit %v: %w", fd, err)
		}
		handles = append(handles, h)
	}
	pid, err := k.procs.Spawn(parent, proc.SpawnOptions{Name: opts.Name, Inherit: handles})
	if err != nil {
		return 0, err
	}
	k.bind(pid, priority, task, true)
	return pid, nil
}

// SpawnTask binds an additional task to a live process.
func (k *Kernel) SpawnTask(pid proc.Pid, priority executor.Priority, task Task) (executor.TaskID, error) {
	if task == nil {
		return 0, ErrInvalidTask
	}
	st, err := k.procs.State(pid)
	if err != nil {
		return 0, err
	}
	if st.Is(proc.Zombie) {
		return 0, fmt.Errorf("%w: %v", proc.ErrExited, pid)
	}
	return k.bind(pid, priority, task, false), nil
}

func (k *Kernel) bind(pid proc.Pid, priority executor.Priority, task Task, main bool) executor.TaskID {
	k.mu.Lock()
	defer k.mu.Unlock()
	id := k.exec.Spawn(&bound{k: k, pid: pid, main: main, work: task}, priority)
	tasks, ok := k.bindings[pid]
	if !ok {
		tasks = make(map[executor.TaskID]executor.Waker)
		k.bindings[pid] = tasks
	}
	tasks[id] = k.exec.Waker(id)
	return id
}

func (k *Kernel) unbind(pid proc.Pid, id executor.TaskID) {
	k.mu.Lock()
	defer k.mu.Unlock()
	tasks, ok := k.bindings[pid]
	if !ok {
		return
	}
	delete(tasks, id)
	if len(tasks) == 0 {
		delete(k.bindings, pid)
	}
}

// wakeBound wakes every task bound to pid.
func (k *Kernel) wakeBound(pid proc.Pid) {
	k.mu.Lock()
	wakers := make([]executor.Waker, 0, len(k.bindings[pid]))
	for _, w := range k.bindings[pid] {
		wakers = append(wakers, w)
	}
	k.mu.Unlock()
	for _, w := range wakers {
		w.Wake()
	}
}

// Tasks returns the number of tasks bound to pid.
func (k *Kernel) Tasks(pid proc.Pid) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.bindings[pid])
}

// Exit terminates pid with code.
func (k *Kernel) Exit(pid proc.Pid, code int) error {
	return k.procs.Exit(pid, code)
}

// Kill queues sig for pid; it takes effect on the next step.
func (k *Kernel) Kill(pid proc.Pid, sig signal.Signal) error {
	return k.signals.Send(pid, sig)
}

// Wait reaps a zombie child of pid matching target (a pid or
// proc.AnyChild) and returns its pid and exit code. When no matching child
// has exited yet, pid is Blocked and ErrWouldBlock is returned; the process
// resumes once a matching child exits.
func (k *Kernel) Wait(pid, target proc.Pid) (proc.Pid, int, error) {
	child, found, err := k.procs.ZombieChild(pid, target)
	if err != nil {
		return 0, 0, err
	}
	if found {
		code, err := k.procs.Reap(pid, child)
		if err != nil {
			return 0, 0, err
		}
		return child, code, nil
	}
	if err := k.procs.Block(pid, target); err != nil {
		return 0, 0, err
	}
	return 0, 0, ErrWouldBlock
}

// Reap removes the zombie child on behalf of parent.
func (k *Kernel) Reap(parent, child proc.Pid) (int, error) {
	return k.procs.Reap(parent, child)
}

// State returns the lifecycle state of pid.
func (k *Kernel) State(pid proc.Pid) (proc.State, error) {
	return k.procs.State(pid)
}

// Processes lists every process including zombies, ordered by pid.
func (k *Kernel) Processes() []proc.Info {
	return k.procs.List()
}

// Stop and Continue are job control shortcuts for Kill.
func (k *Kernel) Stop(pid proc.Pid) error { return k.Kill(pid, signal.Stop) }

func (k *Kernel) Continue(pid proc.Pid) error { return k.Kill(pid, signal.Cont) }

// SetHandler catches sig for pid. Bound tasks are woken after fn runs.
func (k *Kernel) SetHandler(pid proc.Pid, sig signal.Signal, fn func(sig signal.Signal)) error {
	if !k.procs.Exists(pid) {
		return fmt.Errorf("%w: %v", proc.ErrNoSuchProcess, pid)
	}
	return k.signals.SetHandler(pid, sig, func(pid proc.Pid, sig signal.Signal) {
		if fn != nil {
			fn(sig)
		}
		k.wakeBound(pid)
	})
}

// Ignore discards sig for pid.
func (k *Kernel) Ignore(pid proc.Pid, sig signal.Signal) error {
	return k.signals.Ignore(pid, sig)
}

// ResetHandler restores the default action of sig for pid.
func (k *Kernel) ResetHandler(pid proc.Pid, sig signal.Signal) error {
	return k.signals.ResetHandler(pid, sig)
}

// SetMask replaces the blocked set of pid and returns the previous one.
func (k *Kernel) SetMask(pid proc.Pid, set signal.Set) signal.Set {
	return k.signals.SetMask(pid, set)
}

// Pending returns the signals queued for pid.
func (k *Kernel) Pending(pid proc.Pid) signal.Set {
	return k.signals.Pending(pid)
}
