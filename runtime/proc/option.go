package proc

import (
	hclog "github.com/hashicorp/go-hclog"

	"github.com/axeberg/axebergos/stats"
)

// Option configures a Table.
type Option func(*Table)

// WithMaxProcesses limits live records, zombies included. Zero means
// unlimited.
func WithMaxProcesses(n int) Option {
	return func(t *Table) {
		t.maxProcesses = n
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

// WithStats sets the counters tracker.
func WithStats(s *stats.Stats) Option {
	return func(t *Table) {
		t.stats = s
	}
}

// WithListener registers a listener for table events.
func WithListener(l Listener) Option {
	return func(t *Table) {
		if l != nil {
			t.listeners = append(t.listeners, l)
		}
	}
}
