package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithLogger returns a context carrying l. The admin server uses it to
// hand handlers a logger already tagged with the request ID.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by WithLogger, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
