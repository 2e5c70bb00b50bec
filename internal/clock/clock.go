// Package clock provides the monotonic time source used by the kernel. Time
// is expressed as the duration elapsed since boot so that timer arithmetic
// never depends on wall-clock adjustments.
package clock

import (
	"sync"
	"time"
)

// NowFunc returns current wall time. Override in tests for determinism.
var NowFunc = time.Now

// Clock reports monotonic time since boot.
type Clock interface {
	Now() time.Duration
}

// System is a Clock backed by the host monotonic clock.
type System struct {
	boot time.Time
}

// Now returns time elapsed since the clock was created.
func (s *System) Now() time.Duration {
	return NowFunc().Sub(s.boot)
}

// NewSystem creates a system clock anchored at the current instant.
func NewSystem() *System {
	return &System{boot: NowFunc()}
}

// Manual is a Clock advanced explicitly by the caller.
type Manual struct {
	mu  sync.Mutex
	now time.Duration
}

// Now returns the current manual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to an absolute instant. Moving backwards is ignored.
func (m *Manual) Set(now time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now > m.now {
		m.now = now
	}
}

// Advance moves the clock forward by d and returns the new instant.
func (m *Manual) Advance(d time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now += d
	}
	return m.now
}

// NewManual creates a manual clock starting at start.
func NewManual(start time.Duration) *Manual {
	return &Manual{now: start}
}
