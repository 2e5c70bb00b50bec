package event

import (
	"context"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
)

// Listener feeds events from a publisher to a handler on its own goroutine.
type Listener[T any] struct {
	publisher    *Publisher[T]
	handler      func(*Event[T])
	pollInterval time.Duration
	logger       hclog.Logger
	cancel       context.CancelFunc
	done         chan struct{}
	mu           sync.Mutex
}

func NewListener[T any](publisher *Publisher[T], handler func(*Event[T])) *Listener[T] {
	return &Listener[T]{
		publisher:    publisher,
		handler:      handler,
		pollInterval: 10 * time.Millisecond,
		logger:       hclog.NewNullLogger(),
	}
}

// Start runs the listener until ctx is done or Stop is called.
func (l *Listener[T]) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.loop(ctx, l.done)
}

func (l *Listener[T]) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		event, err := l.publisher.Consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.Warn("failed to consume event", "error", err)
		}
		if event == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.pollInterval):
			}
			continue
		}
		l.handler(event)
	}
}

// Stop cancels the listener and waits for its goroutine to exit.
func (l *Listener[T]) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
