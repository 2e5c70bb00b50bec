package axebergos

import (
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/viant/afs"

	"github.com/axeberg/axebergos/internal/clock"
	"github.com/axeberg/axebergos/internal/idgen"
	"github.com/axeberg/axebergos/internal/logging"
	"github.com/axeberg/axebergos/runtime/executor"
	"github.com/axeberg/axebergos/runtime/object"
	"github.com/axeberg/axebergos/runtime/proc"
	"github.com/axeberg/axebergos/runtime/signal"
	"github.com/axeberg/axebergos/runtime/timer"
	"github.com/axeberg/axebergos/service/event"
	"github.com/axeberg/axebergos/stats"
)

// Kernel owns every kernel table. Syscall methods are safe to call from
// tasks during a step and from other goroutines; Step itself must not run
// concurrently with itself.
type Kernel struct {
	config *Config
	bootID string
	clock  clock.Clock
	logger hclog.Logger
	fs     afs.Service
	stats  *stats.Stats

	exec    *executor.Executor
	procs   *proc.Table
	signals *signal.Delivery
	timers  *timer.Queue
	objects *object.Table

	events    *event.Service
	publisher *event.Publisher[ProcessEvent]

	mu       sync.Mutex
	bindings map[proc.Pid]map[executor.TaskID]executor.Waker
	sleepers map[timer.ID]proc.Pid
	alarms   map[timer.ID]proc.Pid
}

// New boots a kernel.
func New(options ...Option) (*Kernel, error) {
	k := &Kernel{
		config:   DefaultConfig(),
		bindings: make(map[proc.Pid]map[executor.TaskID]executor.Waker),
		sleepers: make(map[timer.ID]proc.Pid),
		alarms:   make(map[timer.ID]proc.Pid),
	}
	for _, opt := range options {
		opt(k)
	}
	if err := k.config.Validate(); err != nil {
		return nil, err
	}
	k.logger = logging.OrNull(k.logger)
	if k.clock == nil {
		k.clock = clock.NewSystem()
	}
	if k.fs == nil {
		k.fs = afs.New()
	}
	if k.bootID == "" {
		k.bootID = idgen.New()
	}
	k.stats = stats.New(k.bootID)

	k.objects = object.New(
		object.WithMaxHandles(k.config.Object.MaxHandles),
		object.WithLogger(k.logger.Named("object")),
		object.WithFreeListener(k.onObjectFreed),
	)
	k.procs = proc.New(k.objects,
		proc.WithMaxProcesses(k.config.Process.MaxProcesses),
		proc.WithLogger(k.logger.Named("proc")),
		proc.WithStats(k.stats),
		proc.WithListener(k.onProcessEvent),
	)
	k.signals = signal.New(k.procs,
		signal.WithLogger(k.logger.Named("signal")),
		signal.WithStats(k.stats),
	)
	k.timers = timer.New(timer.WithLogger(k.logger.Named("timer")))
	k.exec = executor.New(
		executor.WithConfig(k.config.Executor),
		executor.WithLogger(k.logger.Named("executor")),
		executor.WithStats(k.stats),
	)
	if k.config.Events.Enabled {
		if err := k.initEvents(); err != nil {
			return nil, err
		}
	}
	k.logger.Info("boot", "id", k.bootID)
	return k, nil
}

// BootID returns the boot identifier.
func (k *Kernel) BootID() string { return k.bootID }

// Config returns the active configuration.
func (k *Kernel) Config() *Config { return k.config }

// Stats returns the live counters tracker.
func (k *Kernel) Stats() *stats.Stats { return k.stats }

// Logger returns the kernel logger.
func (k *Kernel) Logger() hclog.Logger { return k.logger }

// Now returns the kernel clock.
func (k *Kernel) Now() time.Duration { return k.clock.Now() }

// Objects exposes the object table to collaborators that mint their own
// objects.
func (k *Kernel) Objects() *object.Table { return k.objects }

// Shutdown stops event listeners.
func (k *Kernel) Shutdown() {
	if k.events != nil {
		k.events.Close()
	}
}

func (k *Kernel) onObjectFreed(h object.Handle, obj object.Object) {
	k.stats.Update(stats.Delta{ObjectsFreed: 1})
	k.logger.Trace("object freed", "handle", h, "kind", obj.Kind())
}

func (k *Kernel) onProcessEvent(ev proc.Event) {
	switch ev.Type {
	case proc.EventTransition:
		switch ev.To.Kind {
		case proc.Running:
			k.wakeBound(ev.Pid)
		case proc.Zombie:
			k.onExit(ev)
		}
	case proc.EventReap:
		k.mu.Lock()
		delete(k.bindings, ev.Pid)
		k.mu.Unlock()
	}
	k.publish(ev)
}

// onExit lets bound tasks observe the exit, drops the process timers and
// signal state, and notifies the parent.
func (k *Kernel) onExit(ev proc.Event) {
	k.wakeBound(ev.Pid)
	k.cancelTimers(ev.Pid)
	k.signals.Forget(ev.Pid)
	k.logger.Debug("exit", "pid", ev.Pid, "code", ev.To.ExitCode)
	if ev.Parent == proc.Init {
		return
	}
	if err := k.signals.Send(ev.Parent, signal.Chld); err != nil {
		k.logger.Debug("chld not sent", "pid", ev.Parent, "error", err)
	}
	st, err := k.procs.State(ev.Parent)
	if err != nil || !st.Is(proc.Blocked) {
		return
	}
	if st.Awaited == ev.Pid || st.Awaited == proc.AnyChild {
		if err := k.procs.Resume(ev.Parent); err != nil {
			k.logger.Warn("failed to resume waiter", "pid", ev.Parent, "error", err)
		}
	}
}
