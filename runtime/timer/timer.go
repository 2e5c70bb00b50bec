package timer

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSuchTimer is returned when cancelling an unknown, fired or
	// already cancelled timer.
	ErrNoSuchTimer = errors.New("no such timer")
	// ErrInvalidPeriod is returned for interval timers with a non-positive period.
	ErrInvalidPeriod = errors.New("invalid timer period")
)

// ID identifies a scheduled timer.
type ID uint64

func (id ID) String() string {
	return fmt.Sprintf("t%d", uint64(id))
}

// Kind describes timer repetition. The zero value is a one-shot timer.
type Kind struct {
	Period time.Duration
	repeat bool
}

// OneShot returns a kind that fires once.
func OneShot() Kind { return Kind{} }

// Interval returns a kind that fires every period.
func Interval(period time.Duration) Kind { return Kind{Period: period, repeat: true} }

// IsInterval reports whether the timer repeats.
func (k Kind) IsInterval() bool { return k.repeat }

func (k Kind) String() string {
	if k.IsInterval() {
		return "interval(" + k.Period.String() + ")"
	}
	return "oneshot"
}

// Fired reports a timer crossing its fire time.
type Fired struct {
	ID ID
	// At is the fire time that was crossed.
	At time.Duration
	// Next is the rescheduled fire time for interval timers, zero otherwise.
	Next time.Duration
	Kind Kind
}

type entry struct {
	id        ID
	at        time.Duration
	seq       uint64
	kind      Kind
	cancelled bool
	index     int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func (h entryHeap) Peek() *entry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}
