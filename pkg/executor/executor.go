// Package executor defines the code execution backends used by the agent
// and exposed by the interpreter service.
//
// Two backends exist. Local runs snippets in-process through the session
// registry. The remote package forwards snippets to an interpreter service
// over HTTP, optionally acquiring a dedicated sandbox per session. Both
// return the same api.Observation, so the agent cannot tell them apart.
//
// Failures of the executed code are never returned as Go errors; they are
// reported in the observation. The error return carries infrastructure
// failures as *api.APIError values.
package executor

import (
	"context"
	"time"

	"github.com/rhuss/datasci/pkg/api"
)

const (
	// DefaultTimeout applies when a request carries no timeout.
	DefaultTimeout = 30 * time.Second

	// MaxTimeout caps the timeout a caller can request.
	MaxTimeout = 5 * time.Minute
)

// Executor runs code in sessions.
type Executor interface {
	// Execute runs req.Code in the session named by req.SessionID,
	// creating it when absent. The observation's SessionID names the
	// session that was used.
	Execute(ctx context.Context, req api.ExecuteRequest) (*api.Observation, error)

	// CreateSession creates an empty session and returns its identifier.
	CreateSession(ctx context.Context) (string, error)

	// DeleteSession tears a session down. Unknown identifiers yield a
	// not_found APIError.
	DeleteSession(ctx context.Context, id string) error

	// Health reports whether the backend can accept executions.
	Health(ctx context.Context) error

	// Close releases every session held by the backend.
	Close() error
}

// Inspector is implemented by backends that can describe their sessions.
type Inspector interface {
	Session(ctx context.Context, id string) (*api.SessionInfo, error)
	Sessions(ctx context.Context) ([]api.SessionInfo, error)
}

// Limits bounds execution timeouts.
type Limits struct {
	Default time.Duration
	Max     time.Duration
}

// DefaultLimits returns the built-in timeout bounds.
func DefaultLimits() Limits {
	return Limits{Default: DefaultTimeout, Max: MaxTimeout}
}

// Clamp applies the default to a zero timeout and caps it at Max.
func (l Limits) Clamp(d time.Duration) time.Duration {
	if d <= 0 {
		d = l.Default
	}
	if d <= 0 {
		d = DefaultTimeout
	}
	if l.Max > 0 && d > l.Max {
		d = l.Max
	}
	return d
}
