package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/datasci/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// execution. HTTP status codes are logged by the HTTP layer.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ExecuteHandler) ExecuteHandler {
		return ExecuteHandlerFunc(func(ctx context.Context, req api.ExecuteRequest) (*api.Observation, error) {
			start := time.Now()
			obs, err := next.Execute(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.Int("code_bytes", len(req.Code)),
				slog.Duration("duration", time.Since(start)),
			}
			if obs != nil {
				attrs = append(attrs,
					slog.String("session_id", obs.SessionID),
					slog.String("status", string(obs.Status)),
				)
				if obs.Error != nil {
					attrs = append(attrs, slog.String("error_kind", string(obs.Error.Kind)))
				}
			} else if req.SessionID != "" {
				attrs = append(attrs, slog.String("session_id", req.SessionID))
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "execution request failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "execution completed", attrs...)
			}
			return obs, err
		})
	}
}
