package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/debug"
	"github.com/rhuss/datasci/pkg/interpreter"
	"github.com/rhuss/datasci/pkg/observability"
)

var (
	// ErrNotFound is returned when a session identifier is unknown.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidID is returned for identifiers that fail validation.
	ErrInvalidID = errors.New("invalid session id")

	// ErrClosed is returned after the manager has been closed.
	ErrClosed = errors.New("session manager closed")
)

// Factory builds the interpreter for a new session.
type Factory func(id string) (*interpreter.Context, error)

// Manager is the session registry. It is safe for concurrent use.
type Manager struct {
	factory Factory
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	wg sync.WaitGroup
}

// NewManager creates a registry that builds interpreters with factory.
func NewManager(factory Factory) *Manager {
	return &Manager{
		factory:  factory,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// InterpreterFactory returns a Factory creating interpreter contexts with
// the given options.
func InterpreterFactory(opts interpreter.Options) Factory {
	return func(id string) (*interpreter.Context, error) {
		return interpreter.New(id, opts)
	}
}

// ResolveOrCreate returns the session registered under id, creating it when
// absent. An empty id creates a session under a fresh identifier. created
// reports whether this call created the session. Concurrent calls for the
// same unknown id observe exactly one interpreter.
func (m *Manager) ResolveOrCreate(id string) (*Session, bool, error) {
	if id == "" {
		id = api.NewSessionID()
	} else if !api.ValidateSessionID(id) {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, false, ErrClosed
	}
	if s, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		<-s.ready
		if s.initErr != nil {
			return nil, false, s.initErr
		}
		s.Touch(m.now())
		return s, false, nil
	}
	s := newSession(id, m.now())
	m.sessions[id] = s
	m.mu.Unlock()

	// The interpreter is built outside the lock; lookups of the same id
	// wait on ready.
	ctx, err := m.factory(id)
	if err != nil {
		s.initErr = fmt.Errorf("creating session %s: %w", id, err)
		m.mu.Lock()
		if m.sessions[id] == s {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
		close(s.ready)
		return nil, false, s.initErr
	}
	s.ctx = ctx
	m.mu.Lock()
	removed := m.sessions[id] != s
	m.mu.Unlock()
	if removed {
		s.initErr = ErrClosed
		s.close()
		close(s.ready)
		return nil, false, ErrClosed
	}
	close(s.ready)

	observability.SessionsCreatedTotal.Inc()
	observability.ActiveSessions.Inc()
	debug.Log("sessions", "session created", "session_id", id)
	return s, true, nil
}

// Get returns a ready session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || !s.isReady() {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns the ready sessions sorted by creation time.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.isReady() {
			out = append(out, s)
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle removes sessions unused for longer than ttl. A session that is
// executing is skipped and reconsidered on the next call. It returns the
// evicted identifiers.
func (m *Manager) EvictIdle(ttl time.Duration) []string {
	cutoff := m.now().Add(-ttl)

	var victims []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if !s.isReady() || s.LastUsed().After(cutoff) {
			continue
		}
		if !s.TryAcquire() {
			continue
		}
		delete(m.sessions, id)
		victims = append(victims, s)
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(victims))
	for _, s := range victims {
		s.close()
		s.Release()
		ids = append(ids, s.ID)
		observability.ActiveSessions.Dec()
		observability.SessionsEvictedTotal.WithLabelValues("idle").Inc()
		debug.Log("sessions", "session evicted", "session_id", s.ID, "idle", m.now().Sub(s.LastUsed()).String())
	}
	sort.Strings(ids)
	return ids
}

// Teardown removes a session. The identifier is unusable immediately; when
// an execution is running, the interpreter is released after it finishes.
// It reports whether the session existed.
func (m *Manager) Teardown(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && s.isReady() {
		delete(m.sessions, id)
	} else {
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.teardown(s, "deleted")
	return true
}

func (m *Manager) teardown(s *Session, reason string) {
	s.closed.Store(true)
	observability.ActiveSessions.Dec()
	observability.SessionsEvictedTotal.WithLabelValues(reason).Inc()

	if s.TryAcquire() {
		s.close()
		s.Release()
		debug.Log("sessions", "session torn down", "session_id", s.ID, "reason", reason)
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = s.Acquire(context.Background())
		s.close()
		s.Release()
		debug.Log("sessions", "busy session torn down", "session_id", s.ID, "reason", reason)
	}()
}

// Run evicts idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ids := m.EvictIdle(ttl); len(ids) > 0 {
				slog.Info("evicted idle sessions", "count", len(ids), "ttl", ttl.String())
			}
		}
	}
}

// Close tears down every session and waits for busy ones to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	var all []*Session
	for id, s := range m.sessions {
		if s.isReady() {
			all = append(all, s)
		}
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		m.teardown(s, "shutdown")
	}
	m.wg.Wait()
}
