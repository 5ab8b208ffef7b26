package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/executor"
	"github.com/rhuss/datasci/pkg/observability"
)

// requestGrace is added to the execution timeout for the HTTP round trip.
const requestGrace = 30 * time.Second

// lease pins a session to the sandbox it was created on. A lease is
// registered before its sandbox is acquired; ready is closed once url is
// set or err reports why the acquisition failed.
type lease struct {
	url     string
	release func()
	ready   chan struct{}
	err     error
}

func newLease() *lease {
	return &lease{release: func() {}, ready: make(chan struct{})}
}

// wait blocks until the lease's sandbox is known.
func (l *lease) wait(ctx context.Context) error {
	select {
	case <-l.ready:
		return l.err
	case <-ctx.Done():
		return api.NewUnavailableError(fmt.Sprintf("waiting for sandbox: %v", ctx.Err()))
	}
}

// Executor forwards executions to interpreter services. Every session
// stays on the sandbox that created it until it is deleted.
type Executor struct {
	client   *Client
	acquirer SandboxAcquirer
	limits   executor.Limits

	mu     sync.Mutex
	leases map[string]*lease
}

var _ executor.Executor = (*Executor)(nil)

// New creates a remote executor.
func New(client *Client, acquirer SandboxAcquirer, limits executor.Limits) *Executor {
	if limits == (executor.Limits{}) {
		limits = executor.DefaultLimits()
	}
	return &Executor{
		client:   client,
		acquirer: acquirer,
		limits:   limits,
		leases:   make(map[string]*lease),
	}
}

// Execute implements executor.Executor.
func (e *Executor) Execute(ctx context.Context, req api.ExecuteRequest) (*api.Observation, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, api.NewInvalidRequestError("code", "code is required")
	}
	timeout := e.limits.Clamp(req.Timeout())
	req.TimeoutSeconds = timeout.Seconds()

	l, fresh, err := e.leaseFor(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+requestGrace)
	defer cancel()

	start := time.Now()
	obs, err := e.client.Execute(reqCtx, l.url, req)
	observability.ExecutionDuration.WithLabelValues("remote").Observe(time.Since(start).Seconds())
	if err != nil {
		if fresh {
			e.drop(req.SessionID, l)
		}
		observability.ExecutionsTotal.WithLabelValues("remote", "transport_error").Inc()
		return nil, err
	}
	observability.ExecutionsTotal.WithLabelValues("remote", string(obs.Status)).Inc()

	if fresh && req.SessionID == "" {
		e.record(ctx, obs.SessionID, l)
	}
	return obs, nil
}

// leaseFor returns the sandbox of a session, acquiring one on first use.
// Concurrent first uses of the same id share a single acquisition. fresh
// reports whether this call acquired the sandbox.
func (e *Executor) leaseFor(ctx context.Context, sessionID string) (l *lease, fresh bool, err error) {
	if sessionID == "" {
		l = newLease()
		return l, true, e.acquire(ctx, l)
	}

	e.mu.Lock()
	l, ok := e.leases[sessionID]
	if !ok {
		l = newLease()
		e.leases[sessionID] = l
	}
	e.mu.Unlock()

	if ok {
		if err := l.wait(ctx); err != nil {
			return nil, false, err
		}
		return l, false, nil
	}
	if err := e.acquire(ctx, l); err != nil {
		e.forget(sessionID, l)
		return nil, false, err
	}
	return l, true, nil
}

// acquire fills in l and marks it ready.
func (e *Executor) acquire(ctx context.Context, l *lease) error {
	defer close(l.ready)
	url, release, err := e.acquirer.Acquire(ctx)
	if err != nil {
		l.err = api.NewUnavailableError(fmt.Sprintf("acquire sandbox: %v", err))
		return l.err
	}
	l.url, l.release = url, release
	return nil
}

// forget unregisters l if it is still the lease of sessionID.
func (e *Executor) forget(sessionID string, l *lease) {
	e.mu.Lock()
	if e.leases[sessionID] == l {
		delete(e.leases, sessionID)
	}
	e.mu.Unlock()
}

// drop gives up a lease whose first execution failed.
func (e *Executor) drop(sessionID string, l *lease) {
	if sessionID != "" {
		e.forget(sessionID, l)
	}
	l.release()
}

// record stores the lease of a session the sandbox named. When the id is
// already taken by a lease on another sandbox, the existing lease wins and
// the session just created on ours is deleted before ours is released.
func (e *Executor) record(ctx context.Context, sessionID string, l *lease) {
	e.mu.Lock()
	existing, exists := e.leases[sessionID]
	if !exists {
		e.leases[sessionID] = l
	}
	e.mu.Unlock()
	if !exists {
		return
	}
	if existing.wait(ctx) == nil && existing.url != l.url {
		slog.Warn("session was created on two sandboxes, keeping the first", "session_id", sessionID)
		if err := e.client.DeleteSession(ctx, l.url, sessionID); err != nil {
			slog.Debug("deleting duplicate remote session failed", "session_id", sessionID, "error", err.Error())
		}
	}
	l.release()
}

// CreateSession implements executor.Executor.
func (e *Executor) CreateSession(ctx context.Context) (string, error) {
	l, _, err := e.leaseFor(ctx, "")
	if err != nil {
		return "", err
	}
	id, err := e.client.CreateSession(ctx, l.url)
	if err != nil {
		l.release()
		return "", err
	}
	e.record(ctx, id, l)
	return id, nil
}

// DeleteSession implements executor.Executor.
func (e *Executor) DeleteSession(ctx context.Context, id string) error {
	e.mu.Lock()
	l, ok := e.leases[id]
	delete(e.leases, id)
	e.mu.Unlock()
	if !ok {
		return api.NewNotFoundError(fmt.Sprintf("session %s not found", id))
	}
	if err := l.wait(ctx); err != nil {
		return api.NewNotFoundError(fmt.Sprintf("session %s not found", id))
	}
	defer l.release()
	return e.client.DeleteSession(ctx, l.url, id)
}

// Session returns the remote description of a session this executor knows.
func (e *Executor) Session(ctx context.Context, id string) (*api.SessionInfo, error) {
	e.mu.Lock()
	l, ok := e.leases[id]
	e.mu.Unlock()
	if !ok {
		return nil, api.NewNotFoundError(fmt.Sprintf("session %s not found", id))
	}
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return e.client.Session(ctx, l.url, id)
}

// Health implements executor.Executor. Only a static service can be
// probed; claimed sandboxes are checked when they are acquired.
func (e *Executor) Health(ctx context.Context) error {
	if u, ok := e.acquirer.(StaticURL); ok {
		return e.client.Health(ctx, string(u))
	}
	return nil
}

// Close deletes every known session and releases its sandbox.
func (e *Executor) Close() error {
	e.mu.Lock()
	leases := e.leases
	e.leases = make(map[string]*lease)
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for id, l := range leases {
		if err := l.wait(ctx); err != nil {
			continue
		}
		if err := e.client.DeleteSession(ctx, l.url, id); err != nil {
			slog.Debug("remote session cleanup failed", "session_id", id, "error", err.Error())
		}
		l.release()
	}
	return nil
}
