package messaging

import (
	"context"
	"errors"
)

// Vendor names a queue implementation.
type Vendor string

const (
	// VendorMemory keeps messages in process memory.
	VendorMemory Vendor = "memory"
	// VendorFS spools messages as JSON files on any afs storage URL.
	VendorFS Vendor = "fs"
)

var (
	// ErrQueueFull is returned by TryPublish when the queue cannot take more
	// messages.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueEmpty is returned by TryConsume when no message is available.
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrAlreadyProcessed is returned when a message is acked or nacked twice.
	ErrAlreadyProcessed = errors.New("message already processed")
)

// Queue represents an abstract message queue for any payload type
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue
	Publish(ctx context.Context, t *T) error

	// Consume retrieves a single message from the queue
	Consume(ctx context.Context) (Message[T], error)
}

// TryQueue is a queue that can be used without ever blocking the caller.
// Kernel code paths must only use this form.
type TryQueue[T any] interface {
	Queue[T]

	// TryPublish adds a message or fails with ErrQueueFull.
	TryPublish(t *T) error

	// TryConsume takes a message or fails with ErrQueueEmpty.
	TryConsume() (Message[T], error)

	// Size returns the number of queued messages.
	Size() int
}

// Message represents a message retrieved from a queue
type Message[T any] interface {
	// ID returns the message identifier
	ID() string

	// T returns the payload of this message
	T() *T

	// Ack acknowledges successful processing of this message
	Ack() error

	// Nack indicates failure in processing this message
	Nack(err error) error
}
