package signal

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/axeberg/axebergos/runtime/proc"
	"github.com/axeberg/axebergos/stats"
)

// Processes is the part of the process table driven by delivery.
type Processes interface {
	State(pid proc.Pid) (proc.State, error)
	Stop(pid proc.Pid) error
	Resume(pid proc.Pid) error
	Terminate(pid proc.Pid, code int) error
}

// Handler is invoked when a caught signal is delivered.
type Handler func(pid proc.Pid, sig Signal)

// Outcome reports what one Deliver call did.
type Outcome struct {
	// Delivered lists consumed signals in the order they took effect.
	Delivered []Signal
	Stopped   bool
	Continued bool
	Exited    bool
	ExitCode  int
}

type state struct {
	pending  []Signal
	kills    int
	mask     Set
	ignored  Set
	handlers map[Signal]Handler
}

func (s *state) has(sig Signal) bool {
	return slices.Contains(s.pending, sig)
}

func (s *state) remove(sig Signal) {
	s.pending = slices.DeleteFunc(s.pending, func(p Signal) bool { return p == sig })
}

func (s *state) empty() bool {
	return s.kills == 0 && len(s.pending) == 0 && s.mask == 0 && s.ignored == 0 && len(s.handlers) == 0
}

// Option configures a Delivery.
type Option func(*Delivery)

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(d *Delivery) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithStats sets the counters tracker.
func WithStats(s *stats.Stats) Option {
	return func(d *Delivery) {
		d.stats = s
	}
}

// Delivery keeps pending signals, masks and dispositions per process.
// Deliver must not run concurrently for the same pid.
type Delivery struct {
	mu     sync.Mutex
	procs  Processes
	states map[proc.Pid]*state
	logger hclog.Logger
	stats  *stats.Stats
}

// New creates a Delivery driving procs.
func New(procs Processes, options ...Option) *Delivery {
	d := &Delivery{
		procs:  procs,
		states: make(map[proc.Pid]*state),
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

func (d *Delivery) stateLocked(pid proc.Pid) *state {
	s, ok := d.states[pid]
	if !ok {
		s = &state{}
		d.states[pid] = s
	}
	return s
}

// Send records sig as pending for pid. Signals sent to a zombie are
// discarded.
func (d *Delivery) Send(pid proc.Pid, sig Signal) error {
	if !sig.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSignal, int(sig))
	}
	st, err := d.procs.State(pid)
	if err != nil {
		return err
	}
	if st.Is(proc.Zombie) {
		return nil
	}
	d.mu.Lock()
	s := d.stateLocked(pid)
	if sig == Kill {
		s.kills++
	} else if !s.has(sig) {
		s.pending = append(s.pending, sig)
	}
	d.mu.Unlock()

	d.logger.Trace("send", "pid", pid, "signal", sig)
	d.stats.Update(stats.Delta{SignalsSent: 1})
	return nil
}

// SetMask replaces the blocked mask of pid and returns the previous one.
// Kill and Stop are dropped from set.
func (d *Delivery) SetMask(pid proc.Pid, set Set) Set {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stateLocked(pid)
	prev := s.mask
	s.mask = set.Remove(Kill).Remove(Stop)
	return prev
}

// Mask returns the blocked mask of pid.
func (d *Delivery) Mask(pid proc.Pid) Set {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.states[pid]; ok {
		return s.mask
	}
	return 0
}

// Pending returns the set of pending signals of pid.
func (d *Delivery) Pending(pid proc.Pid) Set {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.states[pid]
	if !ok {
		return 0
	}
	set := NewSet(s.pending...)
	if s.kills > 0 {
		set = set.Add(Kill)
	}
	return set
}

// PendingPids returns, ascending, the pids holding any pending signal.
func (d *Delivery) PendingPids() []proc.Pid {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []proc.Pid
	for pid, s := range d.states {
		if s.kills > 0 || len(s.pending) > 0 {
			out = append(out, pid)
		}
	}
	slices.Sort(out)
	return out
}

// SetHandler catches sig for pid.
func (d *Delivery) SetHandler(pid proc.Pid, sig Signal, h Handler) error {
	if err := checkCatchable(sig); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stateLocked(pid)
	if s.handlers == nil {
		s.handlers = make(map[Signal]Handler)
	}
	s.handlers[sig] = h
	s.ignored = s.ignored.Remove(sig)
	return nil
}

// Ignore discards sig for pid on delivery.
func (d *Delivery) Ignore(pid proc.Pid, sig Signal) error {
	if err := checkCatchable(sig); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stateLocked(pid)
	delete(s.handlers, sig)
	s.ignored = s.ignored.Add(sig)
	return nil
}

// ResetHandler restores the default action of sig for pid.
func (d *Delivery) ResetHandler(pid proc.Pid, sig Signal) error {
	if !sig.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSignal, int(sig))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.states[pid]; ok {
		delete(s.handlers, sig)
		s.ignored = s.ignored.Remove(sig)
	}
	return nil
}

// Forget drops every trace of pid.
func (d *Delivery) Forget(pid proc.Pid) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.states, pid)
}

func checkCatchable(sig Signal) error {
	if !sig.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSignal, int(sig))
	}
	if !sig.Catchable() {
		return fmt.Errorf("%w: %v", ErrUncatchable, sig)
	}
	return nil
}

type stepKind int

const (
	stepHandle stepKind = iota
	stepStop
	stepContinue
	stepTerminate
)

type step struct {
	kind    stepKind
	sig     Signal
	handler Handler

	// resume continues a stopped process before the handler runs.
	resume bool
}

// Deliver acts on the pending signals of pid. Kill terminates the process
// with 128+9 whatever its state and clears every other pending signal. A
// pending Stop stops a Running process before anything else is looked at;
// the remaining unmasked signals then follow in arrival order. While the
// process is Stopped only Cont is consumed.
func (d *Delivery) Deliver(pid proc.Pid) (Outcome, error) {
	st, err := d.procs.State(pid)
	if err != nil {
		d.Forget(pid)
		return Outcome{}, err
	}

	d.mu.Lock()
	s, ok := d.states[pid]
	if !ok {
		d.mu.Unlock()
		return Outcome{}, nil
	}
	if st.Is(proc.Zombie) {
		s.pending, s.kills = nil, 0
		d.mu.Unlock()
		return Outcome{}, nil
	}
	steps := d.planLocked(s, st.Kind)
	d.mu.Unlock()

	return d.execute(pid, steps)
}

// planLocked consumes pending signals of s and returns the steps to run,
// simulating state changes along the way; caller holds d.mu.
func (d *Delivery) planLocked(s *state, kind proc.Kind) []step {
	if s.kills > 0 {
		s.kills = 0
		s.pending = nil
		return []step{{kind: stepTerminate, sig: Kill}}
	}

	var steps []step
	if s.has(Stop) {
		switch kind {
		case proc.Running:
			steps = append(steps, step{kind: stepStop, sig: Stop})
			kind = proc.Stopped
			s.remove(Stop)
		case proc.Stopped:
			s.remove(Stop)
		}
	}

	var kept []Signal
	for _, sig := range s.pending {
		if sig == Stop || s.mask.Has(sig) {
			kept = append(kept, sig)
			continue
		}
		if kind == proc.Stopped && sig != Cont {
			kept = append(kept, sig)
			continue
		}
		h, caught := s.handlers[sig]
		if caught || s.ignored.Has(sig) {
			// Cont resumes a stopped process even when caught or ignored.
			resume := sig == Cont && kind == proc.Stopped
			if resume {
				kind = proc.Running
			}
			steps = append(steps, step{kind: stepHandle, sig: sig, handler: h, resume: resume})
			continue
		}
		switch DefaultAction(sig) {
		case ActionTerminate:
			s.pending, s.kills = nil, 0
			return append(steps, step{kind: stepTerminate, sig: sig})
		case ActionStop:
			if kind != proc.Running {
				kept = append(kept, sig)
				continue
			}
			steps = append(steps, step{kind: stepStop, sig: sig})
			kind = proc.Stopped
		case ActionContinue:
			if kind == proc.Stopped {
				steps = append(steps, step{kind: stepContinue, sig: sig})
				kind = proc.Running
			} else {
				steps = append(steps, step{kind: stepHandle, sig: sig})
			}
		default:
			steps = append(steps, step{kind: stepHandle, sig: sig})
		}
	}
	s.pending = kept
	return steps
}

func (d *Delivery) execute(pid proc.Pid, steps []step) (Outcome, error) {
	var outcome Outcome
	var errs []error
	for _, st := range steps {
		switch st.kind {
		case stepTerminate:
			code := ExitCode(st.sig)
			if err := d.procs.Terminate(pid, code); err != nil {
				errs = append(errs, err)
				continue
			}
			outcome.Exited = true
			outcome.ExitCode = code
		case stepStop:
			if err := d.procs.Stop(pid); err != nil {
				errs = append(errs, err)
				continue
			}
			outcome.Stopped = true
		case stepContinue:
			if err := d.procs.Resume(pid); err != nil {
				errs = append(errs, err)
				continue
			}
			outcome.Continued = true
		case stepHandle:
			if st.resume {
				if err := d.procs.Resume(pid); err != nil {
					errs = append(errs, err)
					continue
				}
				outcome.Continued = true
			}
			if st.handler != nil {
				st.handler(pid, st.sig)
			}
		}
		outcome.Delivered = append(outcome.Delivered, st.sig)
		d.logger.Trace("deliver", "pid", pid, "signal", st.sig)
	}
	if n := len(outcome.Delivered); n > 0 {
		d.stats.Update(stats.Delta{SignalsDelivered: n})
	}
	return outcome, errors.Join(errs...)
}
