// Package logging configures the process-wide slog logger. Components
// derive their own loggers from it with logger.With("component", ...).
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup builds a text logger on stderr at the given level, installs it
// as the slog default, and returns it. Unknown level strings fall back
// to info.
func Setup(level string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
