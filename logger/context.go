// Package logger builds the process logger and carries request scoped
// loggers through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type ctxKey struct{}

// secretKeys are attribute keys whose values are replaced before output.
var secretKeys = []string{"password", "anon_key", "api_key", "apikey", "secret", "token", "database_url"}

// New returns the process logger: text with debug level in development,
// JSON with info level everywhere else. Credential-looking attributes are
// redacted.
func New(w io.Writer, environment string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo, ReplaceAttr: redact}
	if environment == "development" {
		opts.Level = slog.LevelDebug
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func redact(groups []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}
	return a
}

// FromContext returns the logger stored in ctx or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return WithLogger(ctx, FromContext(ctx).With("request_id", requestID))
}

// WithBackend tags every later log line of the request with the storage
// backend serving it.
func WithBackend(ctx context.Context, backend string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With("storage_backend", backend))
}
