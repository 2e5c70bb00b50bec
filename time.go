package axebergos

import (
	"fmt"
	"time"

	"github.com/axeberg/axebergos/runtime/proc"
	"github.com/axeberg/axebergos/runtime/signal"
	"github.com/axeberg/axebergos/runtime/timer"
	"github.com/axeberg/axebergos/stats"
)

// Sleep puts a Running pid to sleep for d. The process resumes on the first
// step at or after the deadline, or earlier if a signal terminates it.
func (k *Kernel) Sleep(pid proc.Pid, d time.Duration) (timer.ID, error) {
	if err := k.procs.Sleep(pid); err != nil {
		return 0, err
	}
	id, err := k.timers.Schedule(k.clock.Now()+max(d, 0), timer.OneShot())
	if err != nil {
		if rErr := k.procs.Resume(pid); rErr != nil {
			k.logger.Warn("failed to resume after schedule error", "pid", pid, "error", rErr)
		}
		return 0, err
	}
	k.mu.Lock()
	k.sleepers[id] = pid
	k.mu.Unlock()
	return id, nil
}

// Alarm sends SIGALRM to pid after the given delay, and then every interval
// when interval is positive.
func (k *Kernel) Alarm(pid proc.Pid, after, interval time.Duration) (timer.ID, error) {
	st, err := k.procs.State(pid)
	if err != nil {
		return 0, err
	}
	if st.Is(proc.Zombie) {
		return 0, fmt.Errorf("%w: %v", proc.ErrExited, pid)
	}
	kind := timer.OneShot()
	if interval > 0 {
		kind = timer.Interval(interval)
	}
	id, err := k.timers.Schedule(k.clock.Now()+max(after, 0), kind)
	if err != nil {
		return 0, err
	}
	k.mu.Lock()
	k.alarms[id] = pid
	k.mu.Unlock()
	return id, nil
}

// CancelTimer cancels a sleep or alarm timer. Cancelling a sleep leaves the
// process Sleeping until it is resumed by other means.
func (k *Kernel) CancelTimer(id timer.ID) error {
	k.mu.Lock()
	delete(k.sleepers, id)
	delete(k.alarms, id)
	k.mu.Unlock()
	return k.timers.Cancel(id)
}

// Deadline returns the earliest pending timer fire time.
func (k *Kernel) Deadline() (time.Duration, bool) {
	return k.timers.Next()
}

// cancelTimers drops every timer owned by pid.
func (k *Kernel) cancelTimers(pid proc.Pid) {
	var ids []timer.ID
	k.mu.Lock()
	for id, owner := range k.sleepers {
		if owner == pid {
			ids = append(ids, id)
			delete(k.sleepers, id)
		}
	}
	for id, owner := range k.alarms {
		if owner == pid {
			ids = append(ids, id)
			delete(k.alarms, id)
		}
	}
	k.mu.Unlock()
	for _, id := range ids {
		if err := k.timers.Cancel(id); err != nil {
			k.logger.Trace("timer not cancelled", "pid", pid, "timer", id, "error", err)
		}
	}
}

// fireTimers advances the timer queue to now: sleepers are resumed and
// alarms raise SIGALRM.
func (k *Kernel) fireTimers(now time.Duration) int {
	fired := k.timers.Advance(now)
	for _, f := range fired {
		k.mu.Lock()
		sleeper, sleeping := k.sleepers[f.ID]
		delete(k.sleepers, f.ID)
		target, alarm := k.alarms[f.ID]
		if alarm && !f.Kind.IsInterval() {
			delete(k.alarms, f.ID)
		}
		k.mu.Unlock()

		switch {
		case sleeping:
			if st, err := k.procs.State(sleeper); err == nil && st.Is(proc.Sleeping) {
				if err := k.procs.Resume(sleeper); err != nil {
					k.logger.Warn("failed to wake sleeper", "pid", sleeper, "error", err)
				}
			}
		case alarm:
			if err := k.signals.Send(target, signal.Alrm); err != nil {
				k.logger.Debug("alarm dropped", "pid", target, "error", err)
			}
		}
	}
	if len(fired) > 0 {
		k.stats.Update(stats.Delta{TimersFired: len(fired)})
	}
	return len(fired)
}
