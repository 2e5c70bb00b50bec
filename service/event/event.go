package event

import "time"

// Context identifies where an event comes from.
type Context struct {
	BootID    string `json:"bootId,omitempty" yaml:"bootId,omitempty"`
	Pid       int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	TaskID    uint64 `json:"taskId,omitempty" yaml:"taskId,omitempty"`
	EventType string `json:"eventType" yaml:"eventType"`
	Component string `json:"component,omitempty" yaml:"component,omitempty"`
}

// Event wraps a payload with its origin.
type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Data      T                      `json:"data"`
}

func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}
