// Package requestctx carries request-scoped identifiers across layers that do not see gin.Context.
package requestctx

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	callerIDKey
)

// WithRequestID attaches the inbound request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request id, or "" outside a request.
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

// WithCallerID attaches the identity the request is billed to.
func WithCallerID(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, callerIDKey, callerID)
}

// CallerID returns the caller id, or "" outside a request.
func CallerID(ctx context.Context) string {
	s, _ := ctx.Value(callerIDKey).(string)
	return s
}
