package transport

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rhuss/datasci/pkg/api"
	datascidebug "github.com/rhuss/datasci/pkg/debug"
)

// Recovery turns a panic below it into a server error for that request
// only. Panics inside interpreted code never get here; the interpreter
// reports them as runtime_error observations.
func Recovery() Middleware {
	log := datascidebug.Logger("transport")
	return func(next ExecuteHandler) ExecuteHandler {
		return ExecuteHandlerFunc(func(ctx context.Context, req api.ExecuteRequest) (obs *api.Observation, err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				log.Error("execute handler panicked",
					"request_id", RequestIDFromContext(ctx),
					"session_id", req.SessionID,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				obs, err = nil, api.NewServerError(fmt.Sprintf("internal server error: %v", r))
			}()
			return next.Execute(ctx, req)
		})
	}
}
