package axebergos

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/afs"

	"github.com/axeberg/axebergos/internal/yml"
	"github.com/axeberg/axebergos/runtime/executor"
	"github.com/axeberg/axebergos/service/event"
	"github.com/axeberg/axebergos/service/runner"
)

// Config is a serialisable representation of the kernel configuration. It can
// be loaded from YAML through any afs URL. Zero sections are filled with their
// package defaults by DefaultConfig.
type Config struct {
	Executor     executor.Config `json:"executor" yaml:"executor"`
	Process      ProcessConfig   `json:"process" yaml:"process"`
	Object       ObjectConfig    `json:"object" yaml:"object"`
	Pipe         PipeConfig      `json:"pipe" yaml:"pipe"`
	MessageQueue QueueConfig     `json:"messageQueue" yaml:"messageQueue"`
	Events       EventsConfig    `json:"events" yaml:"events"`
	Log          LogConfig       `json:"log" yaml:"log"`
	Tracing      TracingConfig   `json:"tracing" yaml:"tracing"`
	Runner       runner.Config   `json:"runner" yaml:"runner"`
}

type ProcessConfig struct {
	// MaxProcesses bounds live and zombie processes; zero means unbounded.
	MaxProcesses int `json:"maxProcesses" yaml:"maxProcesses"`
	// AutoReap reaps zombies whose parent is init on every step.
	AutoReap bool `json:"autoReap" yaml:"autoReap"`
}

type ObjectConfig struct {
	// MaxHandles bounds live objects; zero means unbounded.
	MaxHandles int `json:"maxHandles" yaml:"maxHandles"`
}

type PipeConfig struct {
	Capacity int `json:"capacity" yaml:"capacity"`
}

type QueueConfig struct {
	Capacity int `json:"capacity" yaml:"capacity"`
}

// EventsConfig enables publishing process lifecycle events.
type EventsConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled"`
	event.Config `json:",inline" yaml:",inline"`
}

type LogConfig struct {
	Name  string `json:"name" yaml:"name"`
	Level string `json:"level" yaml:"level"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName"`
	Version     string `json:"version" yaml:"version"`
	// OutputFile receives exported spans; empty means stdout.
	OutputFile string `json:"outputFile,omitempty" yaml:"outputFile,omitempty"`
}

// DefaultConfig returns a Config populated with the defaults used when no
// configuration file is supplied. Callers may modify it before New.
func DefaultConfig() *Config {
	return &Config{
		Executor:     executor.DefaultConfig(),
		Process:      ProcessConfig{AutoReap: true},
		Pipe:         PipeConfig{Capacity: 4096},
		MessageQueue: QueueConfig{Capacity: 64},
		Events:       EventsConfig{Config: event.DefaultConfig()},
		Log:          LogConfig{Name: "axebergos", Level: "info"},
		Tracing:      TracingConfig{ServiceName: "axebergos", Version: "dev"},
		Runner:       runner.DefaultConfig(),
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Executor.MaxPollsPerTick < 0 {
		errs = append(errs, fmt.Errorf("executor.maxPollsPerTick must be >= 0"))
	}
	if c.Process.MaxProcesses < 0 {
		errs = append(errs, fmt.Errorf("process.maxProcesses must be >= 0"))
	}
	if c.Object.MaxHandles < 0 {
		errs = append(errs, fmt.Errorf("object.maxHandles must be >= 0"))
	}
	if c.Pipe.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("pipe.capacity must be > 0"))
	}
	if c.MessageQueue.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("messageQueue.capacity must be > 0"))
	}
	if c.Events.Enabled {
		if err := c.Events.Config.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("events: %w", err))
		}
	}
	if err := c.Runner.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadConfig reads YAML from URL over DefaultConfig and applies key=value
// overrides addressed by dotted yaml paths, e.g. "pipe.capacity=512". An
// empty URL loads only the overrides.
func LoadConfig(ctx context.Context, fs afs.Service, URL string, overrides ...string) (*Config, error) {
	var data []byte
	if URL != "" {
		var err error
		if data, err = fs.DownloadWithURL(ctx, URL); err != nil {
			return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
		}
	}
	node, err := yml.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %v: %w", URL, err)
	}
	for _, override := range overrides {
		path, value, err := yml.ParseAssignment(override)
		if err != nil {
			return nil, err
		}
		if err := node.Set(path, value); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", override, err)
		}
	}
	config := DefaultConfig()
	if err := node.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config %v: %w", URL, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
