package storage

import (
	"context"
	"errors"

	"github.com/rhuss/datasci/pkg/api"
)

var (
	// ErrNotFound means no run with the requested ID is stored.
	ErrNotFound = errors.New("run not found")

	// ErrConflict means SaveRun was called twice for the same run ID.
	ErrConflict = errors.New("run already exists")
)

// Default and maximum page sizes for ListRuns.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListOptions controls pagination, filtering, and ordering for ListRuns.
type ListOptions struct {
	After  string        // Cursor: return runs after this ID.
	Limit  int           // Maximum number of runs to return (default 20, max 100).
	Status api.RunStatus // Filter by terminal status.
	Order  string        // Sort order by creation time: "asc" or "desc" (default "desc").
}

// EffectiveLimit clamps Limit to [1, MaxListLimit], defaulting to
// DefaultListLimit.
func (o ListOptions) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	}
	return o.Limit
}

// RunList holds a page of runs.
type RunList struct {
	Data    []*api.Run `json:"data"`
	HasMore bool       `json:"has_more"`
	FirstID string     `json:"first_id,omitempty"`
	LastID  string     `json:"last_id,omitempty"`
}

// RunStore persists finished agent runs.
type RunStore interface {
	// SaveRun persists a run. Returns ErrConflict if the ID exists.
	SaveRun(ctx context.Context, run *api.Run) error

	// GetRun retrieves a run by ID. Returns ErrNotFound if missing.
	GetRun(ctx context.Context, id string) (*api.Run, error)

	// ListRuns returns a page of runs.
	ListRuns(ctx context.Context, opts ListOptions) (*RunList, error)

	// DeleteRun removes a run. Returns ErrNotFound if missing.
	DeleteRun(ctx context.Context, id string) error

	// HealthCheck verifies the store is functional.
	HealthCheck(ctx context.Context) error

	// Close releases connections and resources.
	Close() error
}
