// Package logging provides the structured logger shared by the listener,
// broker and worker roles.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a slog.Logger writing JSON to stderr at the given level
// ("debug", "info", "warn", "error"; unrecognized values fall back to info).
func NewLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

type contextKey struct{}

// WithContext attaches logger to ctx so it can be retrieved by FromContext.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger attached to ctx, or slog.Default() if none
// was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// ForRole returns logger with a "role" attribute set, used to tag log lines
// from the listener, broker and worker processes so they can be correlated
// across concurrently-running processes.
func ForRole(logger *slog.Logger, role string) *slog.Logger {
	return logger.With(slog.String("role", role))
}
