package observability

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	pollIDKey    contextKey = "poll_id"
)

// WithRequestID stores the HTTP request id in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithPollID stores the poll id in ctx.
func WithPollID(ctx context.Context, pollID string) context.Context {
	return context.WithValue(ctx, pollIDKey, pollID)
}

// PollIDFromContext returns the poll id, or "" when absent.
func PollIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(pollIDKey).(string)
	return id
}

// WithLogger attaches logger to ctx.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// LoggerFromContext returns the logger attached to ctx, or fallback when ctx
// carries none. Request and poll ids found in ctx are added as fields.
func LoggerFromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	logger := fallback
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}

	fields := logger.With()
	if id := RequestIDFromContext(ctx); id != "" {
		fields = fields.Str("request_id", id)
	}
	if id := PollIDFromContext(ctx); id != "" {
		fields = fields.Str("poll_id", id)
	}
	return fields.Logger()
}
