// Package logging configures colored structured logging with tint.
//
// Usage:
//
//	logging.Setup("")                       // level from LOG_LEVEL env, default info
//	logging.SetupWithLevel(slog.LevelDebug) // explicit level override
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Setup configures colored logging at the given level name. An empty name
// falls back to the LOG_LEVEL env var.
func Setup(level string) {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	SetupWithLevel(ParseLevel(level))
}

// SetupWithLevel configures colored logging at the given level on stderr.
func SetupWithLevel(level slog.Level) {
	slog.SetDefault(New(os.Stderr, level))
}

// New returns a tint-backed logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		AddSource:  level <= slog.LevelDebug,
	}))
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return New(io.Discard, slog.LevelError+4)
}

// ParseLevel maps debug, info, warn and error to slog levels (default info).
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
