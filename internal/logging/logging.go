// Package logging configures the process-wide slog logger from a single
// --debug flag: a text handler to stderr at Debug level when on, Warn
// level otherwise (only warnings, such as a failed blob extraction, are
// shown).
package logging

import (
	"log/slog"
	"os"
)

var defaultLogger *slog.Logger

func init() {
	Init(false)
}

// Init (re)configures the global logger. debug selects Debug level;
// otherwise only Warn and above are emitted.
func Init(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// Debug logs at Debug level, for page classification, dropped cells, and
// truncated overflow chains per spec's "logged when debug mode is on".
func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }

// Warn logs at Warn level.
func Warn(msg string, args ...any) { defaultLogger.Warn(msg, args...) }
