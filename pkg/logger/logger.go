package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns the bootstrap logger used before configuration is loaded.
func New() zerolog.Logger {
	return build(os.Stdout, zerolog.InfoLevel, true, false).
		With().
		Caller().
		Logger()
}

// NewWithConfig builds the service logger from the logging section of the config.
// Unknown levels fall back to info.
func NewWithConfig(level string, pretty, noColor bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return build(os.Stdout, lvl, pretty, noColor).
		With().
		Str("service", "plagiarism-service").
		Logger()
}

func build(out io.Writer, level zerolog.Level, pretty, noColor bool) zerolog.Logger {
	if pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    noColor,
		}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}
