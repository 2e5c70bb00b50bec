package event

import (
	"context"
	"time"

	"github.com/axeberg/axebergos/service/messaging"
)

type Publisher[T any] struct {
	queue    messaging.Queue[Event[T]]
	anyQueue messaging.Queue[Event[any]]
}

func NewPublisher[T any](queue messaging.Queue[Event[T]]) *Publisher[T] {
	return &Publisher[T]{
		queue: queue,
	}
}

// Publish enqueues event and mirrors it on the catch-all queue. Queues that
// support it are written without blocking; a full queue yields
// messaging.ErrQueueFull.
func (p *Publisher[T]) Publish(ctx context.Context, event *Event[T]) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if p.anyQueue != nil {
		_ = publish(ctx, p.anyQueue, &Event[any]{
			Context:   event.Context,
			CreatedAt: event.CreatedAt,
			Metadata:  event.Metadata,
			Data:      event.Data,
		})
	}
	return publish(ctx, p.queue, event)
}

func publish[T any](ctx context.Context, queue messaging.Queue[T], t *T) error {
	if tq, ok := queue.(messaging.TryQueue[T]); ok {
		return tq.TryPublish(t)
	}
	return queue.Publish(ctx, t)
}

// Consume returns the next event, or nil when a polling queue is empty.
func (p *Publisher[T]) Consume(ctx context.Context) (*Event[T], error) {
	msg, err := p.queue.Consume(ctx)
	if err != nil || msg == nil {
		return nil, err
	}
	if err = msg.Ack(); err != nil {
		return nil, err
	}
	return msg.T(), nil
}
