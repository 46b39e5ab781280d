// Package logging wires up the slog.Logger used throughout the indexing
// core. It mirrors the ambient logging convention the rest of this project
// was adapted from: structured attributes on every call, no global default
// logger reached into from library code.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Default returns a text-handler slog.Logger tagged with a "component"
// attribute, honoring TEXTINDEX_LOG_LEVEL (debug|info|warn|error, default
// info).
func Default(component string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelFromEnv(),
	})
	return slog.New(handler).With("component", component)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("TEXTINDEX_LOG_LEVEL")) {
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
