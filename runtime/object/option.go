package object

import hclog "github.com/hashicorp/go-hclog"

// Option configures a Table.
type Option func(*Table)

// WithMaxHandles limits the number of live handles (aliases included).
// Zero means unlimited.
func WithMaxHandles(n int) Option {
	return func(t *Table) {
		t.maxHandles = n
	}
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithFreeListener registers a callback invoked after an object is freed and
// finalized.
func WithFreeListener(fn func(h Handle, obj Object)) Option {
	return func(t *Table) {
		if fn != nil {
			t.freeListeners = append(t.freeListeners, fn)
		}
	}
}
