package axebergos

import (
	"context"
	"time"

	"github.com/axeberg/axebergos/runtime/executor"
	"github.com/axeberg/axebergos/runtime/proc"
	"github.com/axeberg/axebergos/runtime/signal"
	"github.com/axeberg/axebergos/runtime/timer"
	"github.com/axeberg/axebergos/service/ipc"
)

// Task is work bound to a process. Poll is only called while the process is
// Running.
type Task interface {
	Poll(ctx context.Context, p *Proc) executor.Poll
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context, p *Proc) executor.Poll

func (f TaskFunc) Poll(ctx context.Context, p *Proc) executor.Poll {
	return f(ctx, p)
}

// Proc is the view of the kernel handed to a polled task. Blocking calls
// register the task's waker.
type Proc struct {
	k     *Kernel
	pid   proc.Pid
	waker executor.Waker
}

func (p *Proc) Pid() proc.Pid { return p.pid }

func (p *Proc) Kernel() *Kernel { return p.k }

// Waker wakes the polled task.
func (p *Proc) Waker() executor.Waker { return p.waker }

// Spawn creates a child process running task.
func (p *Proc) Spawn(priority executor.Priority, task Task, opts SpawnOptions) (proc.Pid, error) {
	return p.k.Spawn(p.pid, priority, task, opts)
}

// Go binds another task to this process.
func (p *Proc) Go(priority executor.Priority, task Task) (executor.TaskID, error) {
	return p.k.SpawnTask(p.pid, priority, task)
}

func (p *Proc) Exit(code int) error { return p.k.Exit(p.pid, code) }

func (p *Proc) Kill(target proc.Pid, sig signal.Signal) error { return p.k.Kill(target, sig) }

// Wait reaps a zombie child matching target or blocks the process.
func (p *Proc) Wait(target proc.Pid) (proc.Pid, int, error) {
	return p.k.Wait(p.pid, target)
}

// Sleep suspends the process for d. The task should return PollPending.
func (p *Proc) Sleep(d time.Duration) (timer.ID, error) { return p.k.Sleep(p.pid, d) }

// Alarm raises SIGALRM for the process after the delay, then every interval
// when positive.
func (p *Proc) Alarm(after, interval time.Duration) (timer.ID, error) {
	return p.k.Alarm(p.pid, after, interval)
}

func (p *Proc) Read(fd proc.FD, buf []byte) (int, error) {
	return p.k.Read(p.pid, fd, buf, p.waker)
}

func (p *Proc) Write(fd proc.FD, buf []byte) (int, error) {
	return p.k.Write(p.pid, fd, buf, p.waker)
}

func (p *Proc) Close(fd proc.FD) error { return p.k.Close(p.pid, fd) }

func (p *Proc) Send(fd proc.FD, body []byte) error {
	return p.k.SendMessage(p.pid, fd, body, p.waker)
}

func (p *Proc) Receive(fd proc.FD) (ipc.Message, error) {
	return p.k.ReceiveMessage(p.pid, fd, p.waker)
}

// Handle installs fn for sig; the task is woken after fn runs.
func (p *Proc) Handle(sig signal.Signal, fn func(sig signal.Signal)) error {
	return p.k.SetHandler(p.pid, sig, fn)
}

// Mask replaces the blocked signal set and returns the previous one.
func (p *Proc) Mask(set signal.Set) signal.Set { return p.k.SetMask(p.pid, set) }

// bound runs a Task on behalf of pid. It completes without polling once the
// process exits, and parks while the process is not Running.
type bound struct {
	k    *Kernel
	pid  proc.Pid
	main bool
	work Task
}

func (b *bound) Poll(ctx context.Context, w executor.Waker) executor.Poll {
	st, err := b.k.procs.State(b.pid)
	if err != nil || st.Is(proc.Zombie) {
		b.k.unbind(b.pid, w.ID())
		return executor.PollReady
	}
	if !st.Is(proc.Running) {
		return executor.PollPending
	}
	if b.work.Poll(ctx, &Proc{k: b.k, pid: b.pid, waker: w}) == executor.PollPending {
		return executor.PollPending
	}
	b.k.unbind(b.pid, w.ID())
	if b.main {
		if err := b.k.procs.Terminate(b.pid, 0); err != nil {
			b.k.logger.Trace("main task done after exit", "pid", b.pid, "error", err)
		}
	}
	return executor.PollReady
}
