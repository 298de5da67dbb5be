// Package logging configures the process-wide slog logger. Output
// format follows LOG_FORMAT (text/json) and falls back to TTY
// detection; verbosity follows LOG_LEVEL (debug/info/warn/error).
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a logger from the environment.
func New() *slog.Logger {
	level := levelFromEnv()
	opts := &slog.HandlerOptions{
		Level: level,
		// Source locations are only worth the noise when debugging.
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if textOutput() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// SetDefault builds a logger and installs it as the slog default.
func SetDefault() *slog.Logger {
	logger := New()
	slog.SetDefault(logger)
	return logger
}

// textOutput decides between human-readable and JSON output: explicit
// LOG_FORMAT wins, otherwise a terminal gets text and everything else
// (pipes, container logs) gets JSON.
func textOutput() bool {
	switch os.Getenv("LOG_FORMAT") {
	case "text":
		return true
	case "json":
		return false
	}
	stat, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
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
