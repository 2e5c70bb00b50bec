package executor

import (
	"context"
	"sync"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/axeberg/axebergos/stats"
)

// Config holds executor settings.
type Config struct {
	// MaxPollsPerTick bounds the polls of one tick; zero means drain fully,
	// so a task that wakes itself on every poll keeps the tick running.
	MaxPollsPerTick int `json:"maxPollsPerTick" yaml:"maxPollsPerTick"`
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{}
}

// TickResult summarises one tick.
type TickResult struct {
	Polled    int
	Completed int
	// Exhausted is true when the tick stopped at MaxPollsPerTick.
	Exhausted bool
}

// Executor runs tasks cooperatively. Spawn and Wake are safe from any
// goroutine and from inside a poll; RunTick must not be called concurrently
// with itself.
type Executor struct {
	mu      sync.Mutex
	config  Config
	nextID  TaskID
	tasks   map[TaskID]*taskRecord
	queues  [Background + 1][]TaskID
	current TaskID
	logger  hclog.Logger
	stats   *stats.Stats
}

// Option configures an Executor.
type Option func(*Executor)

// WithConfig sets the configuration.
func WithConfig(config Config) Option {
	return func(e *Executor) {
		e.config = config
	}
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithStats sets the counters tracker.
func WithStats(s *stats.Stats) Option {
	return func(e *Executor) {
		e.stats = s
	}
}

// New creates an executor.
func New(options ...Option) *Executor {
	e := &Executor{
		config: DefaultConfig(),
		tasks:  make(map[TaskID]*taskRecord),
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Spawn enqueues a new Ready task. Invalid priorities fall back to Normal.
func (e *Executor) Spawn(work Task, priority Priority) TaskID {
	if !priority.Valid() {
		priority = Normal
	}
	e.mu.Lock()
	e.nextID++
	rec := &taskRecord{id: e.nextID, priority: priority, state: StateReady, work: work}
	e.tasks[rec.id] = rec
	e.queues[priority] = append(e.queues[priority], rec.id)
	e.mu.Unlock()

	e.logger.Trace("spawn", "task", rec.id, "priority", priority)
	e.stats.Update(stats.Delta{TasksSpawned: 1})
	return rec.id
}

// Waker returns a waker for id.
func (e *Executor) Waker(id TaskID) Waker {
	return Waker{id: id, exec: e}
}

// Wake moves a Pending task to Ready and appends it to its queue. Waking a
// Ready, Completed or unknown task does nothing.
func (e *Executor) Wake(id TaskID) {
	e.mu.Lock()
	rec, ok := e.tasks[id]
	if !ok || rec.state != StatePending {
		e.mu.Unlock()
		return
	}
	rec.state = StateReady
	e.queues[rec.priority] = append(e.queues[rec.priority], id)
	e.mu.Unlock()

	e.logger.Trace("wake", "task", id)
	e.stats.Update(stats.Delta{Wakes: 1})
}

// State returns the state of a task; unknown ids report Completed since
// completed tasks are removed.
func (e *Executor) State(id TaskID) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.tasks[id]
	if !ok {
		return StateCompleted
	}
	return rec.state
}

// Current returns the task being polled, if any.
func (e *Executor) Current() (TaskID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.current != 0
}

// Len returns the number of live tasks.
func (e *Executor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// HasReady reports whether any queue holds a task.
func (e *Executor) HasReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, q := range e.queues {
		if len(q) > 0 {
			return true
		}
	}
	return false
}

// dequeue pops the next Ready task of priority p; caller holds e.mu.
func (e *Executor) dequeue(p Priority) (*taskRecord, bool) {
	for len(e.queues[p]) > 0 {
		id := e.queues[p][0]
		e.queues[p][0] = 0
		e.queues[p] = e.queues[p][1:]
		rec, ok := e.tasks[id]
		if !ok || rec.state != StateReady {
			continue
		}
		return rec, true
	}
	return nil, false
}

// RunTick drains Critical, then Normal, then Background, polling each
// dequeued task once.
func (e *Executor) RunTick(ctx context.Context) TickResult {
	var result TickResult
	for p := Critical; p <= Background; p++ {
		for {
			if e.config.MaxPollsPerTick > 0 && result.Polled >= e.config.MaxPollsPerTick {
				result.Exhausted = e.HasReady()
				e.finishTick(result)
				return result
			}
			e.mu.Lock()
			rec, ok := e.dequeue(p)
			if !ok {
				e.mu.Unlock()
				break
			}
			rec.state = StatePending
			e.current = rec.id
			e.mu.Unlock()

			poll := rec.work.Poll(ctx, Waker{id: rec.id, exec: e})
			result.Polled++

			e.mu.Lock()
			e.current = 0
			if poll == PollReady {
				rec.state = StateCompleted
				delete(e.tasks, rec.id)
				result.Completed++
			}
			e.mu.Unlock()
			if poll == PollReady {
				e.logger.Trace("complete", "task", rec.id)
			}
		}
	}
	e.finishTick(result)
	return result
}

func (e *Executor) finishTick(result TickResult) {
	e.stats.Update(stats.Delta{Ticks: 1, Polls: result.Polled, TasksCompleted: result.Completed})
}

// Run calls RunTick until no task is Ready or ctx is done.
func (e *Executor) Run(ctx context.Context) error {
	for e.HasReady() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.RunTick(ctx)
	}
	return nil
}
