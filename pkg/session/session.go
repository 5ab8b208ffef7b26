// Package session keeps the registry of live interpreter sessions: it
// resolves or creates sessions by identifier, serializes executions within
// a session, evicts idle sessions and tears sessions down on request.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/interpreter"
)

// Session is one registry entry. At most one execution holds a session at
// a time; others wait in Acquire.
type Session struct {
	ID        string
	CreatedAt time.Time

	ctx     *interpreter.Context
	initErr error
	ready   chan struct{}

	guard    chan struct{}
	lastUsed atomic.Int64
	closed   atomic.Bool
}

func newSession(id string, now time.Time) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: now,
		ready:     make(chan struct{}),
		guard:     make(chan struct{}, 1),
	}
	s.lastUsed.Store(now.UnixNano())
	return s
}

// Acquire waits until the session is free or ctx is done.
func (s *Session) Acquire(ctx context.Context) error {
	select {
	case s.guard <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the session only if nobody holds it.
func (s *Session) TryAcquire() bool {
	select {
	case s.guard <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the session for the next caller.
func (s *Session) Release() {
	<-s.guard
}

// Touch records activity at t.
func (s *Session) Touch(t time.Time) {
	s.lastUsed.Store(t.UnixNano())
}

// LastUsed returns the time of the last recorded activity.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Closed reports whether the session has been evicted or torn down. A
// caller that acquired a closed session must release it and resolve again.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Context returns the interpreter behind the session. Callers must hold
// the session.
func (s *Session) Context() *interpreter.Context {
	return s.ctx
}

func (s *Session) isReady() bool {
	select {
	case <-s.ready:
		return s.initErr == nil
	default:
		return false
	}
}

// Info describes the session. It waits for any running execution to
// finish because variable names are read from the interpreter.
func (s *Session) Info(ctx context.Context) (*api.SessionInfo, error) {
	if err := s.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.Release()
	if s.Closed() {
		return nil, ErrNotFound
	}
	return &api.SessionInfo{
		SessionID: s.ID,
		CreatedAt: s.CreatedAt,
		LastUsed:  s.LastUsed(),
		Variables: s.ctx.Variables(),
		OutputDir: s.ctx.OutputDir(),
	}, nil
}

// Summary describes the session without touching the interpreter, so it
// never waits for a running execution.
func (s *Session) Summary() api.SessionInfo {
	info := api.SessionInfo{
		SessionID: s.ID,
		CreatedAt: s.CreatedAt,
		LastUsed:  s.LastUsed(),
	}
	if s.ctx != nil {
		info.OutputDir = s.ctx.OutputDir()
	}
	return info
}

func (s *Session) close() {
	s.closed.Store(true)
	if s.ctx != nil {
		s.ctx.Close()
	}
}
