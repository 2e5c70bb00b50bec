package axebergos

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/axeberg/axebergos/service/messaging"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	URL := filepath.Join(dir, "kernel.yaml")
	require.NoError(t, os.WriteFile(URL, []byte(`
executor:
  maxPollsPerTick: 32
process:
  maxProcesses: 8
pipe:
  capacity: 128
events:
  enabled: true
  vendor: memory
  memory:
    queueBuffer: 16
runner:
  idleInterval: 5ms
`), 0o644))

	testCases := []struct {
		description string
		URL         string
		overrides   []string
		check       func(t *testing.T, c *Config)
		expectErr   bool
	}{
		{
			description: "defaults",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, DefaultConfig(), c)
			},
		},
		{
			description: "file",
			URL:         URL,
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 32, c.Executor.MaxPollsPerTick)
				assert.Equal(t, 8, c.Process.MaxProcesses)
				assert.True(t, c.Process.AutoReap)
				assert.Equal(t, 128, c.Pipe.Capacity)
				assert.Equal(t, 64, c.MessageQueue.Capacity)
				assert.True(t, c.Events.Enabled)
				assert.Equal(t, messaging.VendorMemory, c.Events.Vendor)
				assert.Equal(t, 16, c.Events.Memory.QueueBuffer)
				assert.Equal(t, 5*time.Millisecond, c.Runner.IdleInterval)
				assert.True(t, c.Runner.ExitWhenIdle)
			},
		},
		{
			description: "overrides",
			URL:         URL,
			overrides:   []string{"pipe.capacity=512", "process.autoReap=false", "log.level=debug"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 512, c.Pipe.Capacity)
				assert.False(t, c.Process.AutoReap)
				assert.Equal(t, "debug", c.Log.Level)
				assert.Equal(t, 32, c.Executor.MaxPollsPerTick)
			},
		},
		{
			description: "invalid value",
			overrides:   []string{"pipe.capacity=0"},
			expectErr:   true,
		},
		{
			description: "malformed override",
			overrides:   []string{"pipe.capacity"},
			expectErr:   true,
		},
		{
			description: "missing file",
			URL:         filepath.Join(dir, "missing.yaml"),
			expectErr:   true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			config, err := LoadConfig(context.Background(), afs.New(), testCase.URL, testCase.overrides...)
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			testCase.check(t, config)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	config := DefaultConfig()
	assert.NoError(t, config.Validate())

	config.Executor.MaxPollsPerTick = -1
	config.Pipe.Capacity = 0
	config.Events.Enabled = true
	config.Events.Vendor = "kafka"
	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxPollsPerTick")
	assert.Contains(t, err.Error(), "pipe.capacity")
	assert.Contains(t, err.Error(), "events")

	_, err = New(WithConfig(config))
	assert.Error(t, err)
}
