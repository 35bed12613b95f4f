// Package logging builds the zerolog loggers used by the command line tools.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Formats accepted by Configure.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options selects the level, format and destination of a logger.
type Options struct {
	// Level is a zerolog level name. Empty or unknown selects info.
	Level string
	// Format is FormatConsole or FormatJSON. Anything else selects JSON.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
	// Disabled discards every entry.
	Disabled bool
}

// Configure returns a logger that stamps every entry with the time.
func Configure(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	switch {
	case opts.Disabled:
		output = io.Discard
	case opts.Format == FormatConsole:
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}
