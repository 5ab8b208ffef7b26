package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/datasci/pkg/api"
)

// RequestID returns middleware that makes sure every execution carries a
// request ID. An ID already in the context (set by the HTTP layer from the
// X-Request-ID header) is kept.
func RequestID() Middleware {
	return func(next ExecuteHandler) ExecuteHandler {
		return ExecuteHandlerFunc(func(ctx context.Context, req api.ExecuteRequest) (*api.Observation, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.Execute(ctx, req)
		})
	}
}

// NewRequestID returns a fresh request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request ID to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID of ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
