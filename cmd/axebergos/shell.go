package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/axeberg/axebergos"
	"github.com/axeberg/axebergos/runtime/executor"
	"github.com/axeberg/axebergos/runtime/proc"
	"github.com/axeberg/axebergos/runtime/signal"
)

// shell starts a pipeline, a few alarm driven workers and a daemon, then
// waits for every child, killing the daemon once it is the last one left.
type shell struct {
	workers  int
	out      io.Writer
	started  bool
	children map[proc.Pid]string
	daemon   proc.Pid
	killed   bool
}

func newShell(workers int, out io.Writer) *shell {
	return &shell{workers: workers, out: out, children: make(map[proc.Pid]string)}
}

func (s *shell) Poll(ctx context.Context, p *axebergos.Proc) executor.Poll {
	if !s.started {
		s.started = true
		if err := s.start(p); err != nil {
			fmt.Fprintf(s.out, "sh: %v\n", err)
			_ = p.Exit(1)
			return executor.PollReady
		}
	}
	for {
		if !s.killed && len(s.children) == 1 && s.children[s.daemon] != "" {
			s.killed = true
			if err := p.Kill(s.daemon, signal.Term); err != nil {
				fmt.Fprintf(s.out, "sh: kill %v: %v\n", s.daemon, err)
			}
		}
		pid, code, err := p.Wait(proc.AnyChild)
		switch {
		case errors.Is(err, axebergos.ErrWouldBlock):
			return executor.PollPending
		case errors.Is(err, proc.ErrNoChild):
			fmt.Fprintln(s.out, "sh: no more jobs")
			return executor.PollReady
		case err != nil:
			fmt.Fprintf(s.out, "sh: wait: %v\n", err)
			return executor.PollReady
		}
		fmt.Fprintf(s.out, "sh: %s [%v] exited with %d\n", s.children[pid], pid, code)
		delete(s.children, pid)
	}
}

func (s *shell) spawn(p *axebergos.Proc, name string, priority executor.Priority, task axebergos.Task, inherit ...proc.FD) (proc.Pid, error) {
	pid, err := p.Spawn(priority, task, axebergos.SpawnOptions{Name: name, Inherit: inherit})
	if err != nil {
		return 0, fmt.Errorf("spawn %s: %w", name, err)
	}
	s.children[pid] = name
	return pid, nil
}

func (s *shell) start(p *axebergos.Proc) error {
	r, w, err := p.Kernel().Pipe(p.Pid())
	if err != nil {
		return err
	}
	lines := []string{"boot\n", "spawn\n", "pipe\n", "sleep\n", "signal\n"}
	if _, err = s.spawn(p, "echo", executor.Normal, &producer{lines: lines, pause: 5 * time.Millisecond}, w); err != nil {
		return err
	}
	if _, err = s.spawn(p, "cat", executor.Normal, &consumer{out: s.out}, r); err != nil {
		return err
	}
	for _, fd := range []proc.FD{r, w} {
		if err := p.Close(fd); err != nil {
			return err
		}
	}
	for i := 0; i < s.workers; i++ {
		name := fmt.Sprintf("worker%d", i)
		if _, err = s.spawn(p, name, executor.Background, &worker{name: name, out: s.out, ticks: 3, code: 10 + i}); err != nil {
			return err
		}
	}
	s.daemon, err = s.spawn(p, "daemon", executor.Background, axebergos.TaskFunc(func(ctx context.Context, p *axebergos.Proc) executor.Poll {
		return executor.PollPending
	}))
	return err
}

// producer writes lines to descriptor 0, sleeping between lines.
type producer struct {
	lines   []string
	pending []byte
	pause   time.Duration
}

func (t *producer) Poll(ctx context.Context, p *axebergos.Proc) executor.Poll {
	for {
		if len(t.pending) == 0 {
			if len(t.lines) == 0 {
				return executor.PollReady
			}
			t.pending = []byte(t.lines[0])
			t.lines = t.lines[1:]
		}
		n, err := p.Write(0, t.pending)
		if errors.Is(err, axebergos.ErrWouldBlock) {
			return executor.PollPending
		}
		if err != nil {
			_ = p.Exit(1)
			return executor.PollReady
		}
		t.pending = t.pending[n:]
		if len(t.pending) == 0 && len(t.lines) > 0 {
			if _, err := p.Sleep(t.pause); err != nil {
				_ = p.Exit(1)
				return executor.PollReady
			}
			return executor.PollPending
		}
	}
}

// consumer copies descriptor 0 to out until end of file.
type consumer struct {
	out io.Writer
	buf [64]byte
}

func (t *consumer) Poll(ctx context.Context, p *axebergos.Proc) executor.Poll {
	for {
		n, err := p.Read(0, t.buf[:])
		switch {
		case errors.Is(err, axebergos.ErrWouldBlock):
			return executor.PollPending
		case errors.Is(err, io.EOF):
			return executor.PollReady
		case err != nil:
			_ = p.Exit(1)
			return executor.PollReady
		}
		fmt.Fprintf(t.out, "cat: %s", t.buf[:n])
	}
}

// worker counts SIGALRM deliveries and exits with code after ticks alarms.
type worker struct {
	name  string
	out   io.Writer
	ticks int
	code  int
	seen  int
	armed bool
}

func (t *worker) Poll(ctx context.Context, p *axebergos.Proc) executor.Poll {
	if !t.armed {
		t.armed = true
		if err := p.Handle(signal.Alrm, func(signal.Signal) { t.seen++ }); err != nil {
			_ = p.Exit(1)
			return executor.PollReady
		}
		if _, err := p.Alarm(10*time.Millisecond, 10*time.Millisecond); err != nil {
			_ = p.Exit(1)
			return executor.PollReady
		}
		return executor.PollPending
	}
	if t.seen < t.ticks {
		return executor.PollPending
	}
	fmt.Fprintf(t.out, "%s: %d alarms\n", t.name, t.seen)
	_ = p.Exit(t.code)
	return executor.PollReady
}
