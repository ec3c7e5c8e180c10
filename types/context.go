package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keyStreamID  contextKey = "stream_id"
	keyRoute     contextKey = "route"
)

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithStreamID adds stream ID to context.
func WithStreamID(ctx context.Context, streamID string) context.Context {
	return context.WithValue(ctx, keyStreamID, streamID)
}

// StreamID extracts stream ID from context.
func StreamID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyStreamID).(string)
	return v, ok && v != ""
}

// WithRoute adds the logical route name (generate, fix, optimize) to context.
func WithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, keyRoute, route)
}

// Route extracts the logical route name from context.
func Route(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRoute).(string)
	return v, ok && v != ""
}
