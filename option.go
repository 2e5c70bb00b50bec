package axebergos

import (
	hclog "github.com/hashicorp/go-hclog"
	"github.com/viant/afs"

	"github.com/axeberg/axebergos/internal/clock"
)

// Option configures a Kernel.
type Option func(k *Kernel)

// WithConfig sets the kernel configuration.
func WithConfig(config *Config) Option {
	return func(k *Kernel) {
		if config != nil {
			k.config = config
		}
	}
}

// WithLogger sets the root logger; components use named sub-loggers.
func WithLogger(l hclog.Logger) Option {
	return func(k *Kernel) {
		k.logger = l
	}
}

// WithClock sets the monotonic clock, typically clock.NewManual in tests.
func WithClock(c clock.Clock) Option {
	return func(k *Kernel) {
		if c != nil {
			k.clock = c
		}
	}
}

// WithFS sets the file system used for snapshots and fs event queues.
func WithFS(fs afs.Service) Option {
	return func(k *Kernel) {
		if fs != nil {
			k.fs = fs
		}
	}
}

// WithBootID overrides the generated boot identifier.
func WithBootID(id string) Option {
	return func(k *Kernel) {
		if id != "" {
			k.bootID = id
		}
	}
}
