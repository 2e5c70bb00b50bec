// Package stats keeps aggregated kernel counters (ticks, polls, wakes,
// signals, timers). A single tracker is owned by the kernel and shared by
// reference with every component that reports activity through Update.
package stats

import (
	"context"
	"sync"
	"time"
)

// Delta represents an incremental counter change emitted by a kernel
// component. Fields are signed so a delta may also decrement.
type Delta struct {
	Ticks            int
	Polls            int
	Wakes            int
	TasksSpawned     int
	TasksCompleted   int
	ProcessesSpawned int
	ProcessesExited  int
	ProcessesReaped  int
	SignalsSent      int
	SignalsDelivered int
	TimersFired      int
	ObjectsFreed     int
}

// Snapshot is a point-in-time copy of the kernel counters.
type Snapshot struct {
	BootID    string    `json:"bootId" yaml:"bootId"`
	StartedAt time.Time `json:"startedAt" yaml:"startedAt"`

	Ticks            int `json:"ticks" yaml:"ticks"`
	Polls            int `json:"polls" yaml:"polls"`
	Wakes            int `json:"wakes" yaml:"wakes"`
	TasksSpawned     int `json:"tasksSpawned" yaml:"tasksSpawned"`
	TasksCompleted   int `json:"tasksCompleted" yaml:"tasksCompleted"`
	ProcessesSpawned int `json:"processesSpawned" yaml:"processesSpawned"`
	ProcessesExited  int `json:"processesExited" yaml:"processesExited"`
	ProcessesReaped  int `json:"processesReaped" yaml:"processesReaped"`
	SignalsSent      int `json:"signalsSent" yaml:"signalsSent"`
	SignalsDelivered int `json:"signalsDelivered" yaml:"signalsDelivered"`
	TimersFired      int `json:"timersFired" yaml:"timersFired"`
	ObjectsFreed     int `json:"objectsFreed" yaml:"objectsFreed"`
}

// Stats keeps kernel counters. It is safe for concurrent use.
type Stats struct {
	mu       sync.Mutex
	counters Snapshot
	onChange func(Snapshot)
}

// New creates a tracker for the given boot.
func New(bootID string) *Stats {
	return &Stats{counters: Snapshot{BootID: bootID, StartedAt: time.Now()}}
}

// Update applies d. A registered onChange callback is invoked with a copy
// of the counters outside the critical section.
func (s *Stats) Update(d Delta) {
	if s == nil {
		return
	}
	s.mu.Lock()
	c := &s.counters
	c.Ticks += d.Ticks
	c.Polls += d.Polls
	c.Wakes += d.Wakes
	c.TasksSpawned += d.TasksSpawned
	c.TasksCompleted += d.TasksCompleted
	c.ProcessesSpawned += d.ProcessesSpawned
	c.ProcessesExited += d.ProcessesExited
	c.ProcessesReaped += d.ProcessesReaped
	c.SignalsSent += d.SignalsSent
	c.SignalsDelivered += d.SignalsDelivered
	c.TimersFired += d.TimersFired
	c.ObjectsFreed += d.ObjectsFreed
	snapshot := s.counters
	cb := s.onChange
	s.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// OnChange registers a callback invoked after every Update. Passing nil
// disables it.
func (s *Stats) OnChange(cb func(Snapshot)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.onChange = cb
	s.mu.Unlock()
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithStats embeds s in a derived context.
func WithStats(ctx context.Context, s *Stats) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, trackerKey, s)
}

// FromContext extracts the tracker from ctx.
func FromContext(ctx context.Context) (*Stats, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(trackerKey).(*Stats)
	return s, ok
}
