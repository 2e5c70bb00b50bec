package axebergos

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/axeberg/axebergos/internal/clock"
	"github.com/axeberg/axebergos/runtime/executor"
	"github.com/axeberg/axebergos/runtime/proc"
	"github.com/axeberg/axebergos/runtime/signal"
	"github.com/axeberg/axebergos/service/event"
	"github.com/axeberg/axebergos/service/ipc"
	"github.com/axeberg/axebergos/service/runner"
)

func newKernel(t *testing.T, adjust ...func(c *Config)) (*Kernel, *clock.Manual) {
	t.Helper()
	config := DefaultConfig()
	for _, fn := range adjust {
		fn(config)
	}
	clk := clock.NewManual(0)
	k, err := New(WithConfig(config), WithClock(clk), WithFS(afs.New()), WithBootID("test-boot"))
	require.NoError(t, err)
	t.Cleanup(k.Shutdown)
	return k, clk
}

func noAutoReap(c *Config) { c.Process.AutoReap = false }

func withEvents(c *Config) { c.Events.Enabled = true }

// forever never completes and is never woken by itself.
var forever = TaskFunc(func(ctx context.Context, p *Proc) executor.Poll { return executor.PollPending })

func settle(t *testing.T, k *Kernel) int {
	t.Helper()
	steps := 0
	for ; steps < 50 && k.RunOnce(context.Background()); steps++ {
	}
	require.Less(t, steps, 50, "kernel did not settle")
	return steps
}

func drainEvents(t *testing.T, k *Kernel) []ProcessEvent {
	t.Helper()
	publisher, err := event.PublisherOf[ProcessEvent](k.Events())
	require.NoError(t, err)
	var out []ProcessEvent
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		ev, err := publisher.Consume(ctx)
		cancel()
		if err != nil || ev == nil {
			return out
		}
		out = append(out, ev.Data)
	}
}

func TestKernel_MainTaskCompletionExitsAndReaps(t *testing.T) {
	k, _ := newKernel(t)
	ran := 0
	pid, err := k.Spawn(proc.Init, executor.Normal, TaskFunc(func(ctx context.Context, p *Proc) executor.Poll {
		ran++
		return executor.PollReady
	}), SpawnOptions{Name: "once"})
	require.NoError(t, err)
	assert.Equal(t, 1, k.Tasks(pid))

	result := k.Step(context.Background())
	assert.Equal(t, 1, result.Tick.Polled)
	st, err := k.State(pid)
	require.NoError(t, err)
	assert.Equal(t, proc.ZombieState(0), st)
	assert.Equal(t, 0, k.Tasks(pid))

	result = k.Step(context.Background())
	assert.Equal(t, 1, result.Reaped)
	assert.False(t, k.RunOnce(context.Background()))
	_, err = k.State(pid)
	assert.ErrorIs(t, err, proc.ErrNoSuchProcess)
	assert.Equal(t, 1, ran)

	counters := k.Stats().Snapshot()
	assert.Equal(t, 1, counters.ProcessesSpawned)
	assert.Equal(t, 1, counters.ProcessesExited)
	assert.Equal(t, 1, counters.ProcessesReaped)
	assert.Equal(t, "test-boot", counters.BootID)
}

func TestKernel_SleepResumesOnTimer(t *testing.T) {
	k, clk := newKernel(t, noAutoReap)
	phase := 0
	pid, err := k.Spawn(proc.Init, executor.Normal, TaskFunc(func(ctx context.Context, p *Proc) executor.Poll {
		phase++
		if phase == 1 {
			_, err := p.Sleep(100 * time.Millisecond)
			require.NoError(t, err)
			return executor.PollPending
		}
		return executor.PollReady
	}), SpawnOptions{Name: "sleeper"})
	require.NoError(t, err)

	k.Step(context.Background())
	st, _ := k.State(pid)
	assert.Equal(t, proc.Sleeping, st.Kind)
	idle, next, hasTimer := k.Idle()
	assert.True(t, idle)
	assert.True(t, hasTimer)
	assert.Equal(t, 100*time.Millisecond, next)

	clk.Set(50 * time.Millisecond)
	assert.False(t, k.RunOnce(context.Background()))
	st, _ = k.State(pid)
	assert.Equal(t, proc.Sleeping, st.Kind)

	clk.Set(100 * time.Millisecond)
	result := k.Step(context.Background())
	assert.Equal(t, 1, result.TimersFired)
	assert.Equal(t, 2, phase)
	st, _ = k.State(pid)
	assert.Equal(t, proc.ZombieState(0), st)
}

func TestKernel_KillStoppedGoesStraightToZombie(t *testing.T) {
	k, _ := newKernel(t, noAutoReap, withEvents)
	pid, err := k.Spawn(proc.Init, executor.Normal, forever, SpawnOptions{Name: "job"})
	require.NoError(t, err)
	k.Step(context.Background())

	require.NoError(t, k.Stop(pid))
	k.Step(context.Background())
	st, _ := k.State(pid)
	require.Equal(t, proc.Stopped, st.Kind)

	require.NoError(t, k.Kill(pid, signal.Kill))
	k.Step(context.Background())
	st, _ = k.State(pid)
	assert.Equal(t, proc.ZombieState(137), st)
	assert.Equal(t, 0, k.Tasks(pid))

	var transitions []ProcessEvent
	for _, ev := range drainEvents(t, k) {
		if ev.Pid == int(pid) && ev.Type == proc.EventTransition.String() {
			transitions = append(transitions, ev)
		}
	}
	assert.Equal(t, []ProcessEvent{
		{Type: "transition", Pid: int(pid), From: "running", To: "stopped"},
		{Type: "transition", Pid: int(pid), From: "stopped", To: "zombie", ExitCode: 137},
	}, transitions)
}

func TestKernel_StopParksTasksUntilCont(t *testing.T) {
	k, _ := newKernel(t)
	polls := 0
	var waker executor.Waker
	pid, err := k.Spawn(proc.Init, executor.Normal, TaskFunc(func(ctx context.Context, p *Proc) executor.Poll {
		polls++
		waker = p.Waker()
		return executor.PollPending
	}), SpawnOptions{})
	require.NoError(t, err)

	k.Step(context.Background())
	assert.Equal(t, 1, polls)

	require.NoError(t, k.Stop(pid))
	waker.Wake()
	k.Step(context.Background())
	waker.Wake()
	k.Step(context.Background())
	assert.Equal(t, 1, polls)
	st, _ := k.State(pid)
	assert.Equal(t, proc.Stopped, st.Kind)

	require.NoError(t, k.Continue(pid))
	k.Step(context.Background())
	assert.Equal(t, 2, polls)
	st, _ = k.State(pid)
	assert.Equal(t, proc.Running, st.Kind)
}

func TestKernel_PollBudgetBoundsSelfWakingTask(t *testing.T) {
	k, _ := newKernel(t, func(c *Config) { c.Executor.MaxPollsPerTick = 1 })
	polls := 0
	pid, err := k.Spawn(proc.Init, executor.Normal, TaskFunc(func(ctx context.Context, p *Proc) executor.Poll {
		polls++
		p.Waker().Wake()
		return executor.PollPending
	}), SpawnOptions{Name: "spin"})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		result := k.Step(context.Background())
		assert.Equal(t, 1, result.Tick.Polled)
		assert.True(t, result.Tick.Exhausted)
		assert.Equal(t, i, polls)
	}

	require.NoError(t, k.Stop(pid))
	k.Step(context.Background())
	result := k.Step(context.Background())
	assert.Equal(t, 0, result.Tick.Polled)
	assert.Equal(t, 3, polls)

	require.NoError(t, k.Continue(pid))
	k.Step(context.Background())
	assert.Equal(t, 4, polls)
}

func TestKernel_ExitDropsEveryBoundTask(t *testing.T) {
	k, _ := newKernel(t, noAutoReap)
	pid, err := k.Spawn(proc.Init, executor.Normal, forever, SpawnOptions{})
	require.NoError(t, err)
	_, err = k.SpawnTask(pid, executor.Background, forever)
	require.NoError(t, err)
	k.Step(context.Background())
	assert.Equal(t, 2, k.Tasks(pid))

	require.NoError(t, k.Exit(pid, 3))
	result := k.Step(context.Background())
	assert.Equal(t, 2, result.Tick.Completed)
	assert.Equal(t, 0, k.Tasks(pid))

	_, err = k.SpawnTask(pid, executor.Normal, forever)
	assert.ErrorIs(t, err, proc.ErrExited)
	_, err = k.SpawnTask(pid, executor.Normal, nil)
	assert.ErrorIs(t, err, ErrInvalidTask)
}

func TestKernel_PipeBetweenProcesses(t *testing.T) {
	k, _ := newKernel(t)
	shell, err := k.Spawn(proc.Init, executor.Normal, forever, SpawnOptions{Name: "shell"})
	require.NoError(t, err)
	r, w, err := k.Pipe(shell)
	require.NoError(t, err)

	chunks := []string{"hello", " ", "world"}
	producer, err := k.Spawn(shell, executor.Normal, TaskFunc(func(ctx context.Context, p *Proc) executor.Poll {
		if len(chunks) == 0 {
			return executor.PollReady
		}
		n, err := p.Write(0, []byte(chunks[0]))
		require.NoError(t, err)
		require.Equal(t, len(chunks[0]), n)
		chunks = chunks[1:]
		p.Waker().Wake()
		return executor.PollPending
	}), SpawnOptions{Name: "producer", Inherit: []proc.FD{w}})
	require.NoError(t, err)

	var received []byte
	eof := false
	consumer, err := k.Spawn(shell, executor.Normal, TaskFunc(func(ctx context.Context, p *Proc) executor.Poll {
		buf := make([]byte, 3)
		for {
			n, err := p.Read(0, buf)
			switch {
			case err == io.EOF:
				eof = true
				return executor.PollReady
			case err == ErrWouldBlock:
				return executor.PollPending
			}
			require.NoError(t, err)
			received = append(received, buf[:n]...)
		}
	}), SpawnOptions{Name: "consumer", Inherit: []proc.FD{r}})
	require.NoError(t, err)

	require.NoError(t, k.Close(shell, r))
	require.NoError(t, k.Close(shell, w))
	settle(t, k)

	assert.True(t, eof)
	assert.Equal(t, "hello world", string(received))
	for _, pid := range []proc.Pid{producer, consumer} {
		st, err := k.State(pid)
		require.NoError(t, err)
		assert.Equal(t, proc.ZombieState(0), st)
	}
	assert.Equal(t, 0, k.Objects().Len())
	assert.Equal(t, 2, k.Stats().Snapshot().ObjectsFreed)
}

func TestKernel_WaitReapsChild(t *testing.T) {
	k, _ := newKernel(t)
	var child proc.Pid
	var reaped proc.Pid
	code := -1
	parent, err := k.Spawn(proc.Init, executor.Normal, TaskFunc(func(ctx context.Context, p *Proc) executor.Poll {
		if child == 0 {
			var err error
			child, err = p.Spawn(executor.Normal, TaskFunc(func(ctx context.Context, c *Proc) executor.Poll {
				require.NoError(t, c.Exit(7))
				return executor.PollReady
			}), SpawnOptions{Name: "child"})
			require.NoError(t, err)
		}
		pid, exitCode, err := p.Wait(child)
		if err == ErrWouldBlock {
			return executor.PollPending
		}
		require.NoError(t, err)
		reaped, code = pid, exitCode
		return executor.PollReady
	}), SpawnOptions{Name: "parent"})
	require.NoError(t, err)

	k.Step(context.Background())
	assert.Equal(t, child, reaped)
	assert.Equal(t, 7, code)
	_, err = k.State(child)
	assert.ErrorIs(t, err, proc.ErrNoSuchProcess)

	settle(t, k)
	_, err = k.State(parent)
	assert.ErrorIs(t, err, proc.ErrNoSuchProcess)
}

func TestKernel_WaitErrors(t *testing.T) {
	k, _ := newKernel(t, noAutoReap)
	pid, err := k.Spawn(proc.Init, executor.Normal, forever, SpawnOptions{})
	require.NoError(t, err)
	other, err := k.Spawn(proc.Init, executor.Normal, forever, SpawnOptions{})
	require.NoError(t, err)

	_, _, err = k.Wait(pid, proc.AnyChild)
	assert.ErrorIs(t, err, proc.ErrNoChild)
	_, _, err = k.Wait(pid, other)
	assert.ErrorIs(t, err, proc.ErrNoChild)
	_, err = k.Reap(pid, other)
	assert.ErrorIs(t, err, proc.ErrNotChild)
}

func TestKernel_Alarm(t *testing.T) {
	k, clk := newKernel(t, noAutoReap)
	caught, err := k.Spawn(proc.Init, executor.Normal, forever, SpawnOptions{Name: "caught"})
	require.NoError(t, err)
	alarms := 0
	require.NoError(t, k.SetHandler(caught, signal.Alrm, func(sig signal.Signal) { alarms++ }))
	id, err := k.Alarm(caught, 10*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)

	plain, err := k.Spawn(proc.Init, executor.Normal, forever, SpawnOptions{Name: "plain"})
	require.NoError(t, err)
	_, err = k.Alarm(plain, 10*time.Millisecond, 0)
	require.NoError(t, err)

	clk.Set(10 * time.Millisecond)
	result := k.Step(context.Background())
	assert.Equal(t, 2, result.TimersFired)
	assert.Equal(t, 1, alarms)
	st, _ := k.State(plain)
	assert.Equal(t, proc.ZombieState(signal.ExitCode(signal.Alrm)), st)

	clk.Set(35 * time.Millisecond)
	k.Step(context.Background())
	assert.Equal(t, 2, alarms)

	require.NoError(t, k.CancelTimer(id))
	clk.Set(100 * time.Millisecond)
	k.Step(context.Background())
	assert.Equal(t, 2, alarms)
	assert.Equal(t, 0, k.Snapshot().Timers)
}

func TestKernel_SignalTerminatesSleeper(t *testing.T) {
	k, _ := newKernel(t, noAutoReap)
	pid, err := k.Spawn(proc.Init, executor.Normal, TaskFunc(func(ctx context.Context, p *Proc) executor.Poll {
		_, err := p.Sleep(time.Hour)
		require.NoError(t, err)
		return executor.PollPending
	}), SpawnOptions{})
	require.NoError(t, err)
	k.Step(context.Background())
	assert.Equal(t, 1, k.Snapshot().Timers)

	require.NoError(t, k.Kill(pid, signal.Term))
	k.Step(context.Background())
	st, _ := k.State(pid)
	assert.Equal(t, proc.ZombieState(143), st)
	assert.Equal(t, 0, k.Snapshot().Timers)
	assert.Equal(t, 0, k.Tasks(pid))
}

func TestKernel_BrokenPipeRaisesSigpipe(t *testing.T) {
	k, _ := newKernel(t, noAutoReap)
	pid, err := k.Spawn(proc.Init, executor.Normal, forever, SpawnOptions{})
	require.NoError(t, err)
	r, w, err := k.Pipe(pid)
	require.NoError(t, err)
	require.NoError(t, k.Close(pid, r))

	_, err = k.Write(pid, w, []byte("x"), executor.Waker{})
	assert.ErrorIs(t, err, ipc.ErrBrokenPipe)
	assert.True(t, k.Pending(pid).Has(signal.Pipe))

	k.Step(context.Background())
	st, _ := k.State(pid)
	assert.Equal(t, proc.ZombieState(signal.ExitCode(signal.Pipe)), st)
	assert.Equal(t, 0, k.Objects().Len())
}

func TestKernel_RunnerDrivesToIdle(t *testing.T) {
	k, err := New(WithBootID("runner"))
	require.NoError(t, err)
	defer k.Shutdown()

	woke := false
	_, err = k.Spawn(proc.Init, executor.Normal, TaskFunc(func(ctx context.Context, p *Proc) executor.Poll {
		if !woke {
			woke = true
			_, err := p.Sleep(5 * time.Millisecond)
			require.NoError(t, err)
			return executor.PollPending
		}
		return executor.PollReady
	}), SpawnOptions{Name: "nap"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.New(k).Run(ctx))
	assert.Empty(t, k.Processes())
	assert.Equal(t, 1, k.Stats().Snapshot().TimersFired)
}

func TestKernel_ExitLogsTimerAlreadyGone(t *testing.T) {
	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Name: "test", Level: hclog.Trace, Output: &buf})
	k, err := New(WithClock(clock.NewManual(0)), WithLogger(logger), WithBootID("timers"))
	require.NoError(t, err)
	defer k.Shutdown()

	pid, err := k.Spawn(proc.Init, executor.Normal, forever, SpawnOptions{})
	require.NoError(t, err)
	id, err := k.Alarm(pid, 10*time.Millisecond, 0)
	require.NoError(t, err)
	require.NoError(t, k.timers.Cancel(id))

	require.NoError(t, k.Exit(pid, 0))
	assert.Contains(t, buf.String(), "timer not cancelled")
	assert.Equal(t, 0, k.Snapshot().Timers)
}
