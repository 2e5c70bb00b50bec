package memory

import (
	"context"
	"sync"
	"time"

	"github.com/axeberg/axebergos/internal/idgen"
	"github.com/axeberg/axebergos/service/messaging"
)

// Config for memory queue implementation
type Config struct {
	// MaxRetries is how many times a nacked message is requeued.
	MaxRetries int `json:"maxRetries" yaml:"maxRetries"`
	// DeadLetter keeps messages that ran out of retries.
	DeadLetter bool `json:"deadLetter" yaml:"deadLetter"`
	// QueueBuffer is the queue capacity.
	QueueBuffer int `json:"queueBuffer" yaml:"queueBuffer"`
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		DeadLetter:  true,
		QueueBuffer: 100,
	}
}

// Message implements messaging.Message for the in-memory queue
type Message[T any] struct {
	id         string
	payload    T
	queue      *Queue[T]
	retryCount int
	mu         sync.Mutex
	processed  bool
	createdAt  time.Time
}

// ID returns the message identifier
func (m *Message[T]) ID() string {
	return m.id
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

// Retries returns how many times the message was nacked.
func (m *Message[T]) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryCount
}

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return messaging.ErrAlreadyProcessed
	}
	m.processed = true
	return nil
}

// Nack requeues the message at the tail while it is under the retry limit,
// otherwise moves it to the dead letter queue.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	if m.processed {
		m.mu.Unlock()
		return messaging.ErrAlreadyProcessed
	}
	m.processed = true
	m.retryCount++
	retry := &Message[T]{
		id:         m.id,
		payload:    m.payload,
		queue:      m.queue,
		retryCount: m.retryCount,
		createdAt:  time.Now(),
	}
	m.mu.Unlock()

	if retry.retryCount <= m.queue.config.MaxRetries {
		select {
		case m.queue.messages <- retry:
			return nil
		default:
		}
	}
	if m.queue.config.DeadLetter {
		m.queue.dlqMu.Lock()
		m.queue.dlq = append(m.queue.dlq, retry)
		m.queue.dlqMu.Unlock()
	}
	return nil
}

// Queue implements an in-memory messaging.TryQueue
type Queue[T any] struct {
	messages chan *Message[T]
	dlq      []*Message[T]
	config   Config
	dlqMu    sync.Mutex
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		dlq:      make([]*Message[T], 0),
		config:   config,
	}
}

func (q *Queue[T]) newMessage(t *T) *Message[T] {
	return &Message[T]{
		id:        idgen.New(),
		payload:   *t,
		queue:     q,
		createdAt: time.Now(),
	}
}

// Publish adds a new item to the queue, waiting for room until ctx is done
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.messages <- q.newMessage(t):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish adds a new item or fails with messaging.ErrQueueFull
func (q *Queue[T]) TryPublish(t *T) error {
	select {
	case q.messages <- q.newMessage(t):
		return nil
	default:
		return messaging.ErrQueueFull
	}
}

// Consume retrieves a single item, waiting until one is available or ctx is
// done
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryConsume retrieves a single item or fails with messaging.ErrQueueEmpty
func (q *Queue[T]) TryConsume() (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	default:
		return nil, messaging.ErrQueueEmpty
	}
}

// Size returns the current number of messages in the queue
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// Capacity returns the queue buffer size
func (q *Queue[T]) Capacity() int {
	return cap(q.messages)
}

// DLQSize returns the number of messages in the dead letter queue
func (q *Queue[T]) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

// DeadLetters returns the payloads in the dead letter queue
func (q *Queue[T]) DeadLetters() []T {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	out := make([]T, 0, len(q.dlq))
	for _, m := range q.dlq {
		out = append(out, m.payload)
	}
	return out
}

// ensure Queue implements messaging.TryQueue interface
var _ messaging.TryQueue[any] = (*Queue[any])(nil)
