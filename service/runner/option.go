package runner

import hclog "github.com/hashicorp/go-hclog"

// Option configures a Runner.
type Option func(*Runner)

// WithConfig sets the configuration for the runner
func WithConfig(config Config) Option {
	return func(r *Runner) {
		r.config = config
	}
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}
