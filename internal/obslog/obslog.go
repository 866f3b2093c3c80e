// Package obslog wraps github.com/rs/zerolog for the structured diagnostic
// events the engine emits internally. Per SPEC_FULL §0, the core never
// writes human-facing text to stdout/stderr itself — it returns structured
// results — so this logger exists for operator-facing diagnostics
// (migration applied or rolled back, drift tolerated under force) that an embedding
// caller can redirect or subscribe to, not as the primary output channel.
// Modeled on the koustreak-DatRi internal/logger wrapper, trimmed to the
// handful of methods this engine actually calls.
package obslog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Fields is a convenience alias for structured log attributes.
type Fields map[string]any

// Logger wraps a configured zerolog.Logger.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger writing JSON lines to w at the given level
// ("debug", "info", "warn", "error"). Constructed once at command entry
// and passed explicitly down the call chain (SPEC_FULL §0: no
// process-wide mutable state).
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	l := zerolog.New(w).With().Timestamp().Logger()
	l = l.Level(parseLevel(level))
	return &Logger{z: l}
}

// Noop returns a Logger that discards everything, used as a safe default
// when callers don't supply one.
func Noop() *Logger {
	return &Logger{z: zerolog.Nop()}
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) event(e *zerolog.Event, msg string, fields Fields) {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (l *Logger) Debug(msg string, fields Fields) { l.event(l.z.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields Fields)  { l.event(l.z.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields Fields)  { l.event(l.z.Warn(), msg, fields) }

func (l *Logger) Error(msg string, err error, fields Fields) {
	l.event(l.z.Error().Err(err), msg, fields)
}
