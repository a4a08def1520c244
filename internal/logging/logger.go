package logging

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// Options controls the root logger
type Options struct {
	Level  string
	JSON   bool
	Output io.Writer
}

// New builds the process root logger. Module subprocess output is routed
// through named children of this logger, so it must never write to stdout:
// go-plugin uses stdout for its handshake.
func New(opts Options) hclog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "hhminer",
		Level:      level,
		Output:     out,
		JSONFormat: opts.JSON,
	})
}
