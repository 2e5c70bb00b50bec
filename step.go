package axebergos

import (
	"context"
	"errors"
	"time"

	"github.com/axeberg/axebergos/runtime/executor"
	"github.com/axeberg/axebergos/runtime/proc"
	"github.com/axeberg/axebergos/tracing"
)

// StepResult summarises one Step.
type StepResult struct {
	TimersFired      int
	SignalsDelivered int
	Reaped           int
	Tick             executor.TickResult
}

// Progressed reports whether the step did any work.
func (r StepResult) Progressed() bool {
	return r.TimersFired > 0 || r.SignalsDelivered > 0 || r.Reaped > 0 || r.Tick.Polled > 0
}

// Step advances timers to the clock, delivers pending signals, reaps zombies
// left to init and runs one executor tick.
func (k *Kernel) Step(ctx context.Context) StepResult {
	ctx, span := tracing.StartSpan(ctx, "kernel.step", tracing.KindInternal)
	var result StepResult
	var errs []error

	result.TimersFired = k.fireTimers(k.clock.Now())
	for _, pid := range k.signals.PendingPids() {
		outcome, err := k.signals.Deliver(pid)
		if err != nil && !errors.Is(err, proc.ErrNoSuchProcess) {
			k.logger.Warn("signal delivery failed", "pid", pid, "error", err)
			errs = append(errs, err)
		}
		result.SignalsDelivered += len(outcome.Delivered)
	}
	if k.config.Process.AutoReap {
		result.Reaped = k.reapOrphans()
	}
	result.Tick = k.exec.RunTick(ctx)

	span.WithInt("timers.fired", result.TimersFired).
		WithInt("signals.delivered", result.SignalsDelivered).
		WithInt("processes.reaped", result.Reaped).
		WithInt("tasks.polled", result.Tick.Polled)
	tracing.EndSpan(span, errors.Join(errs...))
	return result
}

// RunOnce performs a Step and reports whether it made progress.
func (k *Kernel) RunOnce(ctx context.Context) bool {
	return k.Step(ctx).Progressed()
}

// Idle reports whether no task is ready and no signal is queued. Masked
// signals count as queued. When a timer is pending, next is its fire time.
func (k *Kernel) Idle() (idle bool, next time.Duration, hasTimer bool) {
	idle = !k.exec.HasReady() && len(k.signals.PendingPids()) == 0
	next, hasTimer = k.timers.Next()
	return idle, next, hasTimer
}

func (k *Kernel) reapOrphans() int {
	reaped := 0
	for _, pid := range k.procs.Zombies(proc.Init) {
		code, err := k.procs.Reap(proc.Init, pid)
		if err != nil {
			k.logger.Warn("reap failed", "pid", pid, "error", err)
			continue
		}
		k.logger.Debug("reaped", "pid", pid, "code", code)
		reaped++
	}
	return reaped
}
