package idgen

import "github.com/google/uuid"

// NewFunc returns a new globally unique identifier. Replace in tests.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new identifier.
func New() string { return NewFunc() }

// Short returns the first segment of a new identifier, handy for log fields.
func Short() string {
	id := New()
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
