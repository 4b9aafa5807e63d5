// Package logging builds the zerolog.Logger every other package takes by
// constructor injection: a console writer in debug mode, JSON otherwise,
// with component and pid pre-bound.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

// New returns a logger scoped to component. debug selects a human-readable
// console writer (--debug); otherwise output is newline-delimited JSON on
// stderr, suitable for a process supervisor to capture.
func New(component string, debug bool) zerolog.Logger {
	var w zerolog.Logger
	if debug {
		w = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		w = zerolog.New(os.Stderr)
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return w.Level(level).With().
		Timestamp().
		Str("component", component).
		Int("pid", os.Getpid()).
		Logger()
}
