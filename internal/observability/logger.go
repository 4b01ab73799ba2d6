// Package observability builds the logger and Prometheus metrics shared by
// the extraction commands.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/wildfire-water-etl/internal/config"
	slogmulti "github.com/samber/slog-multi"
)

// NewLogger creates the process logger from config. When LogFile is set,
// records also go to that file as JSON. The returned cleanup closes the file.
func NewLogger(cfg *config.Config) (*slog.Logger, func() error) {
	level := ParseLevel(cfg.LogLevel)
	console := newHandler(os.Stderr, cfg.LogFormat, level)

	if cfg.LogFile == "" {
		return slog.New(console), func() error { return nil }
	}

	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(console)
		logger.Error("failed to open log file, using stderr only", "error", err, "file", cfg.LogFile)
		return logger, func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(console, fileHandler)), file.Close
}

// NewLoggerWithWriters fans out to a console writer and a JSON writer.
func NewLoggerWithWriters(console, file io.Writer, format string, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		newHandler(console, format, level),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	))
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
