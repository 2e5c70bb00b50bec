package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/storage"

	"github.com/axeberg/axebergos/internal/idgen"
	"github.com/axeberg/axebergos/service/messaging"
)

// MessageState represents the state of a message in the filesystem queue
type MessageState string

const (
	// MessageStatePending indicates a message is waiting to be processed
	MessageStatePending MessageState = "pending"

	// MessageStateProcessing indicates a message is being processed
	MessageStateProcessing MessageState = "processing"

	// MessageStateCompleted indicates a message was successfully processed
	MessageStateCompleted MessageState = "completed"

	// MessageStateFailed indicates a message failed processing
	MessageStateFailed MessageState = "failed"
)

// Message implements messaging.Message for the filesystem queue
type Message[T any] struct {
	MessageID string       `json:"id"`
	Seq       uint64       `json:"seq"`
	Data      T            `json:"data"`
	State     MessageState `json:"state"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Retries   int          `json:"retries"`

	queue     *Queue[T]
	processed bool
	mu        sync.Mutex
}

// ID returns the message identifier
func (m *Message[T]) ID() string {
	return m.MessageID
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.Data
}

// Ack moves the message to the completed directory
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return messaging.ErrAlreadyProcessed
	}
	m.processed = true
	m.State = MessageStateCompleted
	m.UpdatedAt = time.Now()
	return m.queue.completeMessage(context.Background(), m)
}

// Nack moves the message to the failed directory for retry, or to the dead
// letter directory once retries are exhausted
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return messaging.ErrAlreadyProcessed
	}
	m.processed = true
	m.State = MessageStateFailed
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	m.UpdatedAt = time.Now()
	return m.queue.failMessage(context.Background(), m)
}

// Config holds configuration for filesystem queue
type Config struct {
	// BasePath is the queue root; any afs URL works (file://, mem://, ...).
	BasePath string `json:"basePath" yaml:"basePath"`
	// MaxRetries is the number of retry attempts before dead-lettering.
	MaxRetries int `json:"maxRetries" yaml:"maxRetries"`
	// KeepCompleted retains acked messages under completed/.
	KeepCompleted bool `json:"keepCompleted" yaml:"keepCompleted"`
}

// DefaultConfig returns a default queue configuration
func DefaultConfig() Config {
	return Config{
		BasePath:      "/tmp/axebergos/queue",
		MaxRetries:    3,
		KeepCompleted: true,
	}
}

// Queue implements a filesystem-based messaging.TryQueue. Files are named
// after a monotonically increasing sequence so listing order is FIFO order.
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	pendingDir    string
	processingDir string
	completedDir  string
	failedDir     string
	dlqDir        string
	seq           uint64
	mu            sync.Mutex
}

// NewQueue creates a new filesystem-based queue
func NewQueue[T any](fs afs.Service, config Config) (*Queue[T], error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	q := &Queue[T]{
		fs:            fs,
		config:        config,
		pendingDir:    path.Join(config.BasePath, "pending"),
		processingDir: path.Join(config.BasePath, "processing"),
		completedDir:  path.Join(config.BasePath, "completed"),
		failedDir:     path.Join(config.BasePath, "failed"),
		dlqDir:        path.Join(config.BasePath, "dlq"),
	}
	ctx := context.Background()
	for _, dir := range []string{q.pendingDir, q.processingDir, q.completedDir, q.failedDir, q.dlqDir} {
		exists, _ := fs.Exists(ctx, dir)
		if !exists {
			if err := fs.Create(ctx, dir, file.DefaultDirOsMode, true); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}
	// resume numbering after messages left by a previous run
	pending, err := q.listMessages(ctx, q.pendingDir)
	if err != nil {
		return nil, err
	}
	if n := len(pending); n > 0 {
		if last, err := q.readMessage(ctx, pending[n-1].URL()); err == nil {
			q.seq = last.Seq
		}
	}
	return q, nil
}

// Publish adds a new message to the queue
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	q.mu.Lock()
	q.seq++
	seq := q.seq
	q.mu.Unlock()

	now := time.Now()
	message := &Message[T]{
		MessageID: idgen.New(),
		Seq:       seq,
		Data:      *t,
		State:     MessageStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return q.uploadMessage(ctx, path.Join(q.pendingDir, filename(message)), data)
}

// TryPublish publishes with a background context; the filesystem queue is
// unbounded so it only fails on storage errors
func (q *Queue[T]) TryPublish(t *T) error {
	return q.Publish(context.Background(), t)
}

// Consume takes the oldest retryable failed message, else the oldest
// pending one. It returns nil, nil when the queue is empty.
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, dir := range []string{q.failedDir, q.pendingDir} {
		message, err := q.claimOldest(ctx, dir)
		if err != nil {
			return nil, err
		}
		if message != nil {
			return message, nil
		}
	}
	return nil, nil
}

// TryConsume is Consume reporting an empty queue as messaging.ErrQueueEmpty
func (q *Queue[T]) TryConsume() (messaging.Message[T], error) {
	message, err := q.Consume(context.Background())
	if err != nil {
		return nil, err
	}
	if message == nil {
		return nil, messaging.ErrQueueEmpty
	}
	return message, nil
}

// Size returns the number of pending and retryable messages
func (q *Queue[T]) Size() int {
	ctx := context.Background()
	total := 0
	for _, dir := range []string{q.pendingDir, q.failedDir} {
		objects, err := q.listMessages(ctx, dir)
		if err == nil {
			total += len(objects)
		}
	}
	return total
}

// DLQSize returns the number of dead-lettered messages
func (q *Queue[T]) DLQSize() int {
	objects, err := q.listMessages(context.Background(), q.dlqDir)
	if err != nil {
		return 0
	}
	return len(objects)
}

// claimOldest moves the oldest message of dir into processing; caller holds
// q.mu.
func (q *Queue[T]) claimOldest(ctx context.Context, dir string) (*Message[T], error) {
	objects, err := q.listMessages(ctx, dir)
	if err != nil || len(objects) == 0 {
		return nil, err
	}
	obj := objects[0]
	message, err := q.readMessage(ctx, obj.URL())
	if err != nil {
		_ = q.fs.Move(ctx, obj.URL(), path.Join(q.dlqDir, "invalid-"+obj.Name()))
		return nil, err
	}
	if message.Retries > q.config.MaxRetries {
		if err := q.fs.Move(ctx, obj.URL(), path.Join(q.dlqDir, obj.Name())); err != nil {
			return nil, fmt.Errorf("failed to move message to DLQ: %w", err)
		}
		return nil, nil
	}
	message.State = MessageStateProcessing
	message.UpdatedAt = time.Now()
	message.queue = q
	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal updated message: %w", err)
	}
	if err := q.uploadMessage(ctx, path.Join(q.processingDir, obj.Name()), data); err != nil {
		return nil, fmt.Errorf("failed to move message to processing directory: %w", err)
	}
	if err := q.fs.Delete(ctx, obj.URL()); err != nil {
		return nil, fmt.Errorf("failed to delete message from %s: %w", dir, err)
	}
	return message, nil
}

func (q *Queue[T]) completeMessage(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.config.KeepCompleted {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal completed message: %w", err)
		}
		if err := q.uploadMessage(ctx, path.Join(q.completedDir, filename(m)), data); err != nil {
			return fmt.Errorf("failed to write message to completed directory: %w", err)
		}
	}
	return q.dropProcessing(ctx, m)
}

func (q *Queue[T]) failMessage(ctx context.Context, m *Message[T]) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal failed message: %w", err)
	}
	dest := q.failedDir
	if m.Retries > q.config.MaxRetries {
		dest = q.dlqDir
	}
	if err := q.uploadMessage(ctx, path.Join(dest, filename(m)), data); err != nil {
		return fmt.Errorf("failed to write message to %s: %w", dest, err)
	}
	return q.dropProcessing(ctx, m)
}

func (q *Queue[T]) dropProcessing(ctx context.Context, m *Message[T]) error {
	processingPath := path.Join(q.processingDir, filename(m))
	if exists, _ := q.fs.Exists(ctx, processingPath); exists {
		if err := q.fs.Delete(ctx, processingPath); err != nil {
			return fmt.Errorf("failed to delete message from processing directory: %w", err)
		}
	}
	return nil
}

// listMessages returns message files of dir sorted by name.
func (q *Queue[T]) listMessages(ctx context.Context, dir string) ([]storage.Object, error) {
	objects, err := q.fs.List(ctx, dir, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var out []storage.Object
	for _, obj := range objects {
		if !obj.IsDir() && strings.HasSuffix(obj.Name(), ".json") {
			out = append(out, obj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// filename is zero padded so lexical order follows publish order.
func filename[T any](m *Message[T]) string {
	return fmt.Sprintf("%020d-%s.json", m.Seq, m.MessageID)
}

func (q *Queue[T]) uploadMessage(ctx context.Context, path string, data []byte) error {
	return q.fs.Upload(ctx, path, file.DefaultFileOsMode, bytes.NewBuffer(data))
}

func (q *Queue[T]) readMessage(ctx context.Context, url string) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %s: %w", url, err)
	}
	var message Message[T]
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %s: %w", url, err)
	}
	return &message, nil
}

// ensure Queue implements messaging.TryQueue interface
var _ messaging.TryQueue[any] = (*Queue[any])(nil)
