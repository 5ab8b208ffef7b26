package transport

import (
	"context"
	"fmt"

	"github.com/rhuss/datasci/pkg/api"
)

// ConcurrencyLimit returns middleware that rejects executions with a
// too_many_requests error while max executions are already running.
// A non-positive max disables the limit.
func ConcurrencyLimit(max int, onReject func()) Middleware {
	if max <= 0 {
		return func(next ExecuteHandler) ExecuteHandler { return next }
	}
	slots := make(chan struct{}, max)
	return func(next ExecuteHandler) ExecuteHandler {
		return ExecuteHandlerFunc(func(ctx context.Context, req api.ExecuteRequest) (*api.Observation, error) {
			select {
			case slots <- struct{}{}:
			default:
				if onReject != nil {
					onReject()
				}
				return nil, api.NewTooManyRequestsError(fmt.Sprintf("interpreter at capacity (%d concurrent executions)", max))
			}
			defer func() { <-slots }()
			return next.Execute(ctx, req)
		})
	}
}
