package timer

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
)

// Queue holds pending timers.
type Queue struct {
	mu     sync.Mutex
	heap   entryHeap
	live   map[ID]*entry
	nextID ID
	seq    uint64
	logger hclog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// New creates an empty queue.
func New(options ...Option) *Queue {
	q := &Queue{
		live:   make(map[ID]*entry),
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range options {
		opt(q)
	}
	return q
}

func (q *Queue) push(e *entry) {
	q.seq++
	e.seq = q.seq
	heap.Push(&q.heap, e)
}

// Schedule registers a timer firing at the given monotonic instant.
func (q *Queue) Schedule(at time.Duration, kind Kind) (ID, error) {
	if kind.IsInterval() && kind.Period <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPeriod, kind.Period)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	e := &entry{id: q.nextID, at: at, kind: kind}
	q.push(e)
	q.live[e.id] = e
	q.logger.Trace("schedule", "timer", e.id, "at", at, "kind", kind)
	return e.id, nil
}

// Cancel marks a timer inert. The entry is discarded when popped.
func (q *Queue) Cancel(id ID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.live[id]
	if !ok {
		return fmt.Errorf("%w: %v", ErrNoSuchTimer, id)
	}
	e.cancelled = true
	delete(q.live, id)
	q.logger.Trace("cancel", "timer", id)
	return nil
}

// Advance pops every live timer whose fire time is at or before now, in
// (fire time, insertion) order. One-shot timers are removed; interval timers
// are moved to the first boundary of their cadence after now.
func (q *Queue) Advance(now time.Duration) []Fired {
	q.mu.Lock()
	defer q.mu.Unlock()
	var fired []Fired
	var rescheduled []*entry
	for {
		top := q.heap.Peek()
		if top == nil || top.at > now {
			break
		}
		e := heap.Pop(&q.heap).(*entry)
		if e.cancelled {
			continue
		}
		f := Fired{ID: e.id, At: e.at, Kind: e.kind}
		if e.kind.IsInterval() {
			elapsed := now - e.at
			e.at += (elapsed/e.kind.Period + 1) * e.kind.Period
			f.Next = e.at
			rescheduled = append(rescheduled, e)
		} else {
			delete(q.live, e.id)
		}
		fired = append(fired, f)
	}
	for _, e := range rescheduled {
		q.push(e)
	}
	if len(fired) > 0 {
		q.logger.Trace("advance", "now", now, "fired", len(fired))
	}
	return fired
}

// Next returns the earliest live fire time.
func (q *Queue) Next() (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		top := q.heap.Peek()
		if top == nil {
			return 0, false
		}
		if !top.cancelled {
			return top.at, true
		}
		heap.Pop(&q.heap)
	}
}

// Pending reports whether id is scheduled and not cancelled.
func (q *Queue) Pending(id ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.live[id]
	return ok
}

// Len returns the number of live timers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.live)
}
