// Package runner drives a kernel's main loop: step while there is work,
// sleep until the next timer when only timers remain.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
)

// Config represents runner configuration
type Config struct {
	// IdleInterval caps how long the runner sleeps when nothing is scheduled.
	IdleInterval time.Duration `json:"idleInterval" yaml:"idleInterval"`
	// ExitWhenIdle stops Run once there is no work and no pending timer.
	ExitWhenIdle bool `json:"exitWhenIdle" yaml:"exitWhenIdle"`
	// MaxSteps stops Run after that many steps; zero means unbounded.
	MaxSteps int `json:"maxSteps,omitempty" yaml:"maxSteps,omitempty"`
}

// DefaultConfig returns the default runner configuration
func DefaultConfig() Config {
	return Config{
		IdleInterval: 10 * time.Millisecond,
		ExitWhenIdle: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.IdleInterval <= 0 {
		return fmt.Errorf("runner.idleInterval must be > 0")
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("runner.maxSteps must be >= 0")
	}
	return nil
}

// Stepper is the kernel surface the runner drives.
type Stepper interface {
	// RunOnce performs one kernel step and reports whether it made progress.
	RunOnce(ctx context.Context) bool
	// Deadline returns the next timer fire time on the stepper's clock.
	Deadline() (time.Duration, bool)
	// Now returns the stepper's clock reading.
	Now() time.Duration
}

// ErrRunning is returned by Start when the runner is already started.
var ErrRunning = errors.New("runner already running")

// Runner runs a Stepper until it goes idle or its context is done.
type Runner struct {
	config  Config
	stepper Stepper
	logger  hclog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// New creates a runner for stepper
func New(stepper Stepper, options ...Option) *Runner {
	r := &Runner{
		config:  DefaultConfig(),
		stepper: stepper,
		logger:  hclog.NewNullLogger(),
	}
	for _, opt := range options {
		opt(r)
	}
	if r.config.IdleInterval <= 0 {
		r.config.IdleInterval = DefaultConfig().IdleInterval
	}
	return r
}

// Run steps until ctx is done, MaxSteps is reached, or, with ExitWhenIdle,
// a step makes no progress and no timer is pending.
func (r *Runner) Run(ctx context.Context) error {
	steps := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.config.MaxSteps > 0 && steps >= r.config.MaxSteps {
			r.logger.Debug("step limit reached", "steps", steps)
			return nil
		}
		steps++
		if r.stepper.RunOnce(ctx) {
			continue
		}
		deadline, ok := r.stepper.Deadline()
		if !ok && r.config.ExitWhenIdle {
			r.logger.Debug("idle", "steps", steps)
			return nil
		}
		wait := r.config.IdleInterval
		if ok {
			wait = deadline - r.stepper.Now()
			if !r.config.ExitWhenIdle && wait > r.config.IdleInterval {
				wait = r.config.IdleInterval
			}
		}
		if wait <= 0 {
			continue
		}
		r.logger.Trace("sleep", "wait", wait)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start runs the loop in the background.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return ErrRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.err = nil
	go func(done chan struct{}) {
		defer close(done)
		err := r.Run(runCtx)
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
	}(r.done)
	return nil
}

// Done is closed when a started loop returns; nil when not started.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Shutdown stops a started loop and returns its error, ignoring the
// cancellation it caused.
func (r *Runner) Shutdown() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.err
	r.cancel, r.done, r.err = nil, nil, nil
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
