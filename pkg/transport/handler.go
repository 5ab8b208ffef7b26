package transport

import (
	"context"

	"github.com/rhuss/datasci/pkg/api"
)

// ExecuteHandler runs a code snippet in a session. Failures of the code
// itself are reported in the Observation; the error return is reserved for
// requests that could not be served and carries an *api.APIError.
type ExecuteHandler interface {
	Execute(ctx context.Context, req api.ExecuteRequest) (*api.Observation, error)
}

// ExecuteHandlerFunc adapts an ordinary function to ExecuteHandler.
type ExecuteHandlerFunc func(ctx context.Context, req api.ExecuteRequest) (*api.Observation, error)

// Execute calls f(ctx, req).
func (f ExecuteHandlerFunc) Execute(ctx context.Context, req api.ExecuteRequest) (*api.Observation, error) {
	return f(ctx, req)
}

// SessionService is the session lifecycle surface of the service. It is
// satisfied by the executor backends.
type SessionService interface {
	CreateSession(ctx context.Context) (string, error)
	DeleteSession(ctx context.Context, id string) error
	Health(ctx context.Context) error
}

// SessionInspector describes live sessions. Backends that cannot list
// their sessions leave the corresponding endpoints unavailable.
type SessionInspector interface {
	Session(ctx context.Context, id string) (*api.SessionInfo, error)
	Sessions(ctx context.Context) ([]api.SessionInfo, error)
}

// GlobalsProvider exposes the shared state block.
type GlobalsProvider interface {
	Globals() map[string]string
}

// Middleware decorates an ExecuteHandler.
type Middleware func(ExecuteHandler) ExecuteHandler

// Chain applies middlewares so that the first one sees a request first.
func Chain(middlewares ...Middleware) Middleware {
	return func(h ExecuteHandler) ExecuteHandler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}
