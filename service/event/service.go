package event

import (
	"context"
	"fmt"
	"path"
	"reflect"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/viant/afs"

	"github.com/axeberg/axebergos/service/messaging"
	"github.com/axeberg/axebergos/service/messaging/fs"
	"github.com/axeberg/axebergos/service/messaging/memory"
)

// Config selects and sizes the event queues.
type Config struct {
	Vendor messaging.Vendor `json:"vendor" yaml:"vendor"`
	Memory memory.Config    `json:"memory" yaml:"memory"`
	FS     fs.Config        `json:"fs" yaml:"fs"`
}

// DefaultConfig returns bounded in-memory queues.
func DefaultConfig() Config {
	return Config{
		Vendor: messaging.VendorMemory,
		Memory: memory.Config{QueueBuffer: 1024},
		FS:     fs.DefaultConfig(),
	}
}

// Validate checks the vendor.
func (c Config) Validate() error {
	switch c.Vendor {
	case messaging.VendorMemory:
	case messaging.VendorFS:
		if c.FS.BasePath == "" {
			return fmt.Errorf("fs event queue requires a base path")
		}
	default:
		return fmt.Errorf("unsupported queue vendor: %s", c.Vendor)
	}
	return nil
}

type Option func(s *Service)

// WithLogger sets the logger used by listeners.
func WithLogger(l hclog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFS sets the storage service backing fs queues.
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// Service hands out one typed publisher per payload type, all mirrored onto
// a catch-all queue.
type Service struct {
	config          Config
	fs              afs.Service
	logger          hclog.Logger
	publisher       *Publisher[any]
	listener        *Listener[any]
	typedPublishers map[reflect.Type]any
	typedListeners  map[reflect.Type]func()
	mux             sync.RWMutex
}

func New(config Config, opts ...Option) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ret := &Service{
		config:          config,
		logger:          hclog.NewNullLogger(),
		typedPublishers: make(map[reflect.Type]any),
		typedListeners:  make(map[reflect.Type]func()),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.fs == nil {
		ret.fs = afs.New()
	}
	queue, err := QueueOf[Event[any]](ret, "any")
	if err != nil {
		return nil, err
	}
	ret.publisher = NewPublisher[any](queue)
	return ret, nil
}

// Publisher returns the catch-all publisher.
func (s *Service) Publisher() *Publisher[any] {
	return s.publisher
}

// SetListener consumes the catch-all queue with handler.
func (s *Service) SetListener(ctx context.Context, handler func(*Event[any])) {
	listener := NewListener[any](s.publisher, handler)
	listener.logger = s.logger
	s.mux.Lock()
	prev := s.listener
	s.listener = listener
	s.mux.Unlock()
	if prev != nil {
		prev.Stop()
	}
	listener.Start(ctx)
}

// Close stops every listener.
func (s *Service) Close() {
	s.mux.Lock()
	listener := s.listener
	s.listener = nil
	stops := make([]func(), 0, len(s.typedListeners))
	for key, stop := range s.typedListeners {
		stops = append(stops, stop)
		delete(s.typedListeners, key)
	}
	s.mux.Unlock()
	if listener != nil {
		listener.Stop()
	}
	for _, stop := range stops {
		stop()
	}
}

func QueueOf[T any](s *Service, name string) (messaging.Queue[T], error) {
	switch s.config.Vendor {
	case messaging.VendorFS:
		config := s.config.FS
		config.BasePath = path.Join(config.BasePath, name)
		return fs.NewQueue[T](s.fs, config)
	case messaging.VendorMemory:
		return memory.NewQueue[T](s.config.Memory), nil
	}
	return nil, fmt.Errorf("unsupported queue vendor: %s", s.config.Vendor)
}

func keyOf[T any]() reflect.Type {
	rType := reflect.TypeOf((*T)(nil)).Elem()
	if rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	return rType
}

// SetListenerOf consumes the typed queue of T with handler.
func SetListenerOf[T any](ctx context.Context, s *Service, handler func(*Event[T])) error {
	publisher, err := PublisherOf[T](s)
	if err != nil {
		return err
	}
	key := keyOf[T]()
	listener := NewListener[T](publisher, handler)
	listener.logger = s.logger

	s.mux.Lock()
	prev := s.typedListeners[key]
	s.typedListeners[key] = listener.Stop
	s.mux.Unlock()
	if prev != nil {
		prev()
	}
	listener.Start(ctx)
	return nil
}

// PublisherOf returns a publisher for the provided type
func PublisherOf[T any](s *Service) (*Publisher[T], error) {
	key := keyOf[T]()
	s.mux.RLock()
	ret, ok := s.typedPublishers[key]
	s.mux.RUnlock()
	if ok {
		return ret.(*Publisher[T]), nil
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	if ret, ok := s.typedPublishers[key]; ok {
		return ret.(*Publisher[T]), nil
	}
	queue, err := QueueOf[Event[T]](s, key.String())
	if err != nil {
		return nil, err
	}
	publisher := NewPublisher[T](queue)
	publisher.anyQueue = s.publisher.queue
	s.typedPublishers[key] = publisher
	return publisher, nil
}
