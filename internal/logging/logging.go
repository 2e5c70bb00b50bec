// Package logging builds the hclog loggers shared by kernel components.
package logging

import (
	"io"
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

// New creates a named logger writing to out at the given level. An empty
// level defaults to info; the TRACE environment variable forces trace.
func New(name, level string, out io.Writer) hclog.Logger {
	if out == nil {
		out = os.Stderr
	}
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}
	if os.Getenv("TRACE") != "" {
		lvl = hclog.Trace
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  lvl,
		Output: out,
	})
}

// OrNull returns l, or a discarding logger when l is nil.
func OrNull(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
