package proc

import (
	"fmt"
	"sync"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/axeberg/axebergos/internal/store"
	"github.com/axeberg/axebergos/runtime/object"
	"github.com/axeberg/axebergos/stats"
)

// Table is the process table. It is safe for concurrent use. Handle
// releases and listeners run outside the table lock.
type Table struct {
	mu           sync.Mutex
	next         Pid
	records      *store.MemoryStore[Pid, process]
	objects      Objects
	maxProcesses int
	logger       hclog.Logger
	stats        *stats.Stats
	listeners    []Listener
}

// New creates an empty table accounting descriptors against objects.
func New(objects Objects, options ...Option) *Table {
	t := &Table{
		records: store.New[Pid, process](func(p *process) Pid { return p.pid }),
		objects: objects,
		logger:  hclog.NewNullLogger(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *Table) notify(events ...Event) {
	for _, event := range events {
		for _, l := range t.listeners {
			l(event)
		}
	}
}

// loadLocked returns the record for pid; caller holds t.mu.
func (t *Table) loadLocked(pid Pid) (*process, error) {
	p, err := t.records.Load(pid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSuchProcess, pid)
	}
	return p, nil
}

// commitLocked moves p to state to and returns the matching event.
func (t *Table) commitLocked(p *process, to State) Event {
	from := p.state
	p.state = to
	return Event{Type: EventTransition, Pid: p.pid, Parent: p.parent, From: from, To: to}
}

func (t *Table) releaseAll(handles []object.Handle) {
	if t.objects == nil {
		return
	}
	for _, h := range handles {
		if err := t.objects.Release(h); err != nil {
			t.logger.Warn("release failed", "handle", h, "error", err)
		}
	}
}

// Spawn creates a Running process whose parent is parent, which must be Init
// or a live process.
func (t *Table) Spawn(parent Pid, opts SpawnOptions) (Pid, error) {
	for i, h := range opts.Inherit {
		if t.objects == nil {
			break
		}
		if err := t.objects.Retain(h); err != nil {
			t.releaseAll(opts.Inherit[:i])
			return 0, fmt.Errorf("failed to inherit %v: %w", h, err)
		}
	}

	t.mu.Lock()
	if parent != Init {
		pp, err := t.loadLocked(parent)
		if err == nil && pp.state.Is(Zombie) {
			err = fmt.Errorf("%w: parent %v has exited", ErrNoSuchProcess, parent)
		}
		if err != nil {
			t.mu.Unlock()
			t.releaseAll(opts.Inherit)
			return 0, err
		}
	}
	if t.maxProcesses > 0 && t.records.Len() >= t.maxProcesses {
		t.mu.Unlock()
		t.releaseAll(opts.Inherit)
		return 0, fmt.Errorf("%w: %d", ErrProcessLimit, t.maxProcesses)
	}
	t.next++
	p := &process{
		pid:    t.next,
		parent: parent,
		name:   opts.Name,
		state:  RunningState(),
		fds:    make(map[FD]object.Handle, len(opts.Inherit)),
	}
	for i, h := range opts.Inherit {
		p.fds[FD(i)] = h
	}
	t.records.Save(p)
	t.mu.Unlock()

	t.logger.Debug("spawn", "pid", p.pid, "parent", parent, "name", opts.Name)
	t.stats.Update(stats.Delta{ProcessesSpawned: 1})
	t.notify(Event{Type: EventSpawn, Pid: p.pid, Parent: parent, To: p.state})
	return p.pid, nil
}

// Transition moves pid to state to. Transitions into Zombie behave as Exit.
func (t *Table) Transition(pid Pid, to State) error {
	if to.Is(Zombie) {
		return t.exit(pid, to.ExitCode, false)
	}
	t.mu.Lock()
	p, err := t.loadLocked(pid)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if !CanTransition(p.state, to) {
		from := p.state
		t.mu.Unlock()
		return fmt.Errorf("%w: %v %v -> %v", ErrInvalidTransition, pid, from, to)
	}
	event := t.commitLocked(p, to)
	t.mu.Unlock()

	t.logger.Trace("transition", "pid", pid, "from", event.From, "to", to)
	t.notify(event)
	return nil
}

// Sleep moves a Running process to Sleeping.
func (t *Table) Sleep(pid Pid) error {
	return t.Transition(pid, SleepingState())
}

// Block moves a Running process to Blocked on awaited.
func (t *Table) Block(pid, awaited Pid) error {
	return t.Transition(pid, BlockedState(awaited))
}

// Stop moves a Running process to Stopped.
func (t *Table) Stop(pid Pid) error {
	return t.Transition(pid, StoppedState())
}

// Resume moves a Sleeping, Blocked or Stopped process back to Running.
func (t *Table) Resume(pid Pid) error {
	return t.Transition(pid, RunningState())
}

// Exit moves pid to Zombie(code), releases every descriptor it holds and
// hands its children to Init.
func (t *Table) Exit(pid Pid, code int) error {
	return t.exit(pid, code, false)
}

// Terminate is a forced Exit: a Sleeping or Blocked process is first woken
// to Running, a Stopped one goes straight to Zombie.
func (t *Table) Terminate(pid Pid, code int) error {
	return t.exit(pid, code, true)
}

func (t *Table) exit(pid Pid, code int, force bool) error {
	t.mu.Lock()
	p, err := t.loadLocked(pid)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	var events []Event
	if force && (p.state.Is(Sleeping) || p.state.Is(Blocked)) {
		events = append(events, t.commitLocked(p, RunningState()))
	}
	to := ZombieState(code)
	if !CanTransition(p.state, to) {
		from := p.state
		t.mu.Unlock()
		return fmt.Errorf("%w: %v %v -> %v", ErrInvalidTransition, pid, from, to)
	}
	events = append(events, t.commitLocked(p, to))
	handles := p.takeHandles()
	for _, child := range t.records.List(func(c *process) bool { return c.parent == pid }) {
		child.parent = Init
		events = append(events, Event{Type: EventReparent, Pid: child.pid, Parent: Init, From: child.state, To: child.state})
	}
	t.mu.Unlock()

	t.releaseAll(handles)
	t.logger.Debug("exit", "pid", pid, "code", code, "released", len(handles))
	t.stats.Update(stats.Delta{ProcessesExited: 1})
	t.notify(events...)
	return nil
}

// Reap removes the zombie pid on behalf of its parent caller and returns its
// exit code.
func (t *Table) Reap(caller, pid Pid) (int, error) {
	t.mu.Lock()
	p, err := t.loadLocked(pid)
	if err != nil {
		t.mu.Unlock()
		return 0, err
	}
	if p.parent != caller {
		t.mu.Unlock()
		return 0, fmt.Errorf("%w: %w: %v is not a child of %v", ErrNoSuchProcess, ErrNotChild, pid, caller)
	}
	if !p.state.Is(Zombie) {
		state := p.state
		t.mu.Unlock()
		return 0, fmt.Errorf("%w: %v is %v", ErrNoSuchProcess, pid, state)
	}
	t.records.Delete(pid)
	event := Event{Type: EventReap, Pid: pid, Parent: caller, From: p.state, To: p.state}
	t.mu.Unlock()

	t.logger.Debug("reap", "pid", pid, "by", caller, "code", event.From.ExitCode)
	t.stats.Update(stats.Delta{ProcessesReaped: 1})
	t.notify(event)
	return event.From.ExitCode, nil
}

// State returns the lifecycle state of pid.
func (t *Table) State(pid Pid) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.loadLocked(pid)
	if err != nil {
		return State{}, err
	}
	return p.state, nil
}

// Exists reports whether pid has a record, zombies included.
func (t *Table) Exists(pid Pid) bool {
	return t.records.Has(pid)
}

// Get returns a snapshot of pid.
func (t *Table) Get(pid Pid) (Info, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.loadLocked(pid)
	if err != nil {
		return Info{}, err
	}
	return p.info(), nil
}

// List returns snapshots of every record ordered by pid.
func (t *Table) List() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	records := t.records.List(nil)
	out := make([]Info, 0, len(records))
	for _, p := range records {
		out = append(out, p.info())
	}
	return out
}

// Len returns the number of records.
func (t *Table) Len() int {
	return t.records.Len()
}

// Children returns the pids whose parent is pid, ascending.
func (t *Table) Children(pid Pid) []Pid {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.childrenLocked(pid, nil)
}

// Zombies returns the zombie children of pid, ascending.
func (t *Table) Zombies(pid Pid) []Pid {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.childrenLocked(pid, func(p *process) bool { return p.state.Is(Zombie) })
}

func (t *Table) childrenLocked(pid Pid, filter func(*process) bool) []Pid {
	var out []Pid
	for _, p := range t.records.List(func(p *process) bool {
		return p.parent == pid && (filter == nil || filter(p))
	}) {
		out = append(out, p.pid)
	}
	return out
}

// ZombieChild looks for an exited child of parent matching target, which is
// a pid or AnyChild. found is false when matching children exist but none
// has exited yet; ErrNoChild is returned when nothing matches.
func (t *Table) ZombieChild(parent, target Pid) (pid Pid, found bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	matches := t.records.List(func(p *process) bool {
		return p.parent == parent && (target == AnyChild || p.pid == target)
	})
	if len(matches) == 0 {
		return 0, false, fmt.Errorf("%w: %v waiting for %v", ErrNoChild, parent, target)
	}
	for _, p := range matches {
		if p.state.Is(Zombie) {
			return p.pid, true, nil
		}
	}
	return 0, false, nil
}
