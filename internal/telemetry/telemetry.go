// Package telemetry wires the engine and memory manager's structured
// logging onto github.com/joeycumines/logiface, backed by log/slog, the
// same "pluggable structured logger attached at construction" shape the
// teacher uses for its own Logger injection point (eventloop.Logger).
package telemetry

import (
	"io"
	"log/slog"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// Logger is the concrete logiface logger type used throughout this
// module. Event field types are whatever the slog adapter supports.
type Logger = logiface.Logger[*islog.Event]

// Level re-exports logiface.Level so callers need not import logiface
// directly for common cases.
type Level = logiface.Level

const (
	LevelDebug   = logiface.LevelDebug
	LevelInfo    = logiface.LevelInformational
	LevelWarning = logiface.LevelWarning
	LevelError   = logiface.LevelError
)

// New builds a Logger that writes JSON lines to w at the given minimum
// level, using slog's JSON handler as the backing implementation.
func New(w io.Writer, level Level) *Logger {
	handler := slog.NewJSONHandler(w, nil)
	return logiface.New[*islog.Event](
		islog.WithSlogHandler(handler),
		logiface.WithLevel[*islog.Event](level),
	)
}

// Discard returns a Logger with logging disabled, for tests and callers
// that do not want event output.
func Discard() *Logger {
	return New(io.Discard, logiface.LevelDisabled)
}
