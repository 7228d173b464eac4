// Package ctxlog passes a request-scoped logger through context so
// handlers and helpers log with the request id already attached.
package ctxlog

import (
	"context"
	"log/slog"
)

type key struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, key{}, logger)
}

// FromContext returns the logger stored in ctx. Callers outside a
// request (startup, shutdown) get slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(key{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
