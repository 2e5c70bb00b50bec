package axebergos

import (
	"context"
	"errors"
	"fmt"

	"github.com/axeberg/axebergos/runtime/proc"
	"github.com/axeberg/axebergos/service/event"
	"github.com/axeberg/axebergos/service/messaging"
)

// ProcessEvent is published for every committed process table change when
// events are enabled.
type ProcessEvent struct {
	Type     string `json:"type" yaml:"type"`
	Pid      int    `json:"pid" yaml:"pid"`
	Parent   int    `json:"parent" yaml:"parent"`
	From     string `json:"from,omitempty" yaml:"from,omitempty"`
	To       string `json:"to" yaml:"to"`
	ExitCode int    `json:"exitCode,omitempty" yaml:"exitCode,omitempty"`
}

func (k *Kernel) initEvents() error {
	events, err := event.New(k.config.Events.Config,
		event.WithLogger(k.logger.Named("event")),
		event.WithFS(k.fs),
	)
	if err != nil {
		return fmt.Errorf("failed to create event service: %w", err)
	}
	publisher, err := event.PublisherOf[ProcessEvent](events)
	if err != nil {
		return fmt.Errorf("failed to create process event publisher: %w", err)
	}
	k.events = events
	k.publisher = publisher
	return nil
}

// Events returns the event service, or nil when events are disabled.
func (k *Kernel) Events() *event.Service {
	return k.events
}

// OnProcessEvent consumes process events with handler until ctx is done.
func (k *Kernel) OnProcessEvent(ctx context.Context, handler func(*event.Event[ProcessEvent])) error {
	if k.events == nil {
		return fmt.Errorf("events are disabled")
	}
	return event.SetListenerOf[ProcessEvent](ctx, k.events, handler)
}

func (k *Kernel) publish(ev proc.Event) {
	if k.publisher == nil {
		return
	}
	data := ProcessEvent{
		Type:   ev.Type.String(),
		Pid:    int(ev.Pid),
		Parent: int(ev.Parent),
		To:     ev.To.Kind.String(),
	}
	if ev.Type != proc.EventSpawn {
		data.From = ev.From.Kind.String()
	}
	if ev.To.Is(proc.Zombie) {
		data.ExitCode = ev.To.ExitCode
	}
	evCtx := &event.Context{BootID: k.bootID, Pid: int(ev.Pid), EventType: data.Type, Component: "proc"}
	err := k.publisher.Publish(context.Background(), event.NewEvent(evCtx, data))
	switch {
	case errors.Is(err, messaging.ErrQueueFull):
		k.logger.Warn("process event dropped", "pid", ev.Pid, "type", data.Type)
	case err != nil:
		k.logger.Error("failed to publish process event", "pid", ev.Pid, "error", err)
	}
}
