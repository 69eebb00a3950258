package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewDefault returns a slog logger writing to stdout.
//
// Level is one of "debug", "info", "warn", "error" (case-insensitive);
// anything else falls back to info.
func NewDefault(level string) *slog.Logger {
	return New(level, os.Getenv("APP_ENV") == "prod")
}

// New builds a logger at the given level. JSON output is used in
// production, text output otherwise.
func New(level string, jsonOutput bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
