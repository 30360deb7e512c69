package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New builds the console logger used by the CLI. Extra writers receive the
// same events as JSON lines.
func New(verbose bool, console io.Writer, extra ...io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	var out io.Writer = zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: "15:04:05",
	}
	if len(extra) > 0 {
		out = zerolog.MultiLevelWriter(append([]io.Writer{out}, extra...)...)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// WithComponent creates a logger with a component field
func WithComponent(log zerolog.Logger, component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
