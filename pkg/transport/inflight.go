package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks running executions so they can be cancelled
// when their session is torn down or the server shuts down.
//
// Entries are keyed by a token the registry hands out, never by the
// client's request ID, which callers may reuse.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]inflight
}

type inflight struct {
	requestID string
	sessionID string
	cancel    context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: make(map[uint64]inflight)}
}

// Register records an execution and returns the token to pass to Remove.
// sessionID may be empty when the session is created by the execution
// itself.
func (r *InFlightRegistry) Register(requestID, sessionID string, cancel context.CancelFunc) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.entries[r.next] = inflight{requestID: requestID, sessionID: sessionID, cancel: cancel}
	return r.next
}

// CancelSession cancels every execution running in sessionID and returns
// the request IDs that were cancelled.
func (r *InFlightRegistry) CancelSession(sessionID string) []string {
	if sessionID == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for token, e := range r.entries {
		if e.sessionID == sessionID {
			e.cancel()
			delete(r.entries, token)
			ids = append(ids, e.requestID)
		}
	}
	return ids
}

// CancelAll cancels every registered execution.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	for token, e := range r.entries {
		e.cancel()
		delete(r.entries, token)
	}
	return n
}

// Remove forgets an execution without cancelling it.
func (r *InFlightRegistry) Remove(token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, token)
}

// Len returns the number of registered executions.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
