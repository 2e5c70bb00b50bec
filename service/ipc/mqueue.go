package ipc

import (
	"errors"
	"sync"

	"github.com/axeberg/axebergos/runtime/object"
	"github.com/axeberg/axebergos/service/messaging"
	"github.com/axeberg/axebergos/service/messaging/memory"
)

// Message is a message queue entry.
type Message struct {
	Sender int    `json:"sender"`
	Body   []byte `json:"body"`
}

// MessageQueue is a bounded FIFO of messages.
type MessageQueue struct {
	mu        sync.Mutex
	queue     messaging.TryQueue[Message]
	closed    bool
	senders   waitList
	receivers waitList
}

// NewMessageQueue creates a queue holding up to capacity messages.
func NewMessageQueue(capacity int) *MessageQueue {
	config := memory.DefaultConfig()
	config.QueueBuffer = capacity
	config.MaxRetries = 0
	config.DeadLetter = false
	return &MessageQueue{queue: memory.NewQueue[Message](config)}
}

func (q *MessageQueue) Kind() object.Kind { return KindMessageQueue }

// Send enqueues msg. A full queue registers waker and returns ErrWouldBlock.
func (q *MessageQueue) Send(msg Message, waker Waker) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if err := q.queue.TryPublish(&msg); err != nil {
		if errors.Is(err, messaging.ErrQueueFull) {
			q.senders.add(waker)
			err = ErrWouldBlock
		}
		q.mu.Unlock()
		return err
	}
	receivers := q.receivers.take()
	q.mu.Unlock()

	receivers.wakeAll()
	return nil
}

// Receive dequeues the oldest message. An empty queue registers waker and
// returns ErrWouldBlock.
func (q *MessageQueue) Receive(waker Waker) (Message, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Message{}, ErrClosed
	}
	m, err := q.queue.TryConsume()
	if err != nil {
		if errors.Is(err, messaging.ErrQueueEmpty) {
			q.receivers.add(waker)
			err = ErrWouldBlock
		}
		q.mu.Unlock()
		return Message{}, err
	}
	msg := *m.T()
	_ = m.Ack()
	senders := q.senders.take()
	q.mu.Unlock()

	senders.wakeAll()
	return msg, nil
}

// Len returns the number of queued messages.
func (q *MessageQueue) Len() int {
	return q.queue.Size()
}

// Finalize discards queued messages and wakes every waiter.
func (q *MessageQueue) Finalize() {
	q.mu.Lock()
	q.closed = true
	for {
		m, err := q.queue.TryConsume()
		if err != nil {
			break
		}
		_ = m.Ack()
	}
	waiters := append(q.senders.take(), q.receivers.take()...)
	q.mu.Unlock()
	waiters.wakeAll()
}
