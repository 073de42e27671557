package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps LOG_LEVEL values, including the dev and production
// aliases, to a slog level. Unknown values yield fallback.
func ParseLevel(value string, fallback slog.Level) slog.Level {
	switch strings.ToLower(value) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}

// Init sets the default logger for the CLI. It stays quiet (errors only)
// unless LOG_LEVEL asks for more.
func Init() {
	level := ParseLevel(os.Getenv("LOG_LEVEL"), slog.LevelError)

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}

// New builds the server logger. format is "text" or "json".
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level, slog.LevelInfo)}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
