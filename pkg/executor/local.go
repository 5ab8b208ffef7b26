package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/debug"
	"github.com/rhuss/datasci/pkg/interpreter"
	"github.com/rhuss/datasci/pkg/observability"
	"github.com/rhuss/datasci/pkg/session"
)

// maxResolveAttempts bounds how often Execute re-resolves a session that
// was torn down between lookup and acquisition.
const maxResolveAttempts = 3

// LocalOptions configures the in-process backend.
type LocalOptions struct {
	Interpreter interpreter.Options
	Limits      Limits

	// IdleTTL evicts sessions unused for longer; zero disables eviction.
	IdleTTL time.Duration

	// JanitorInterval is how often idle sessions are looked for.
	JanitorInterval time.Duration
}

// Local executes code in-process, one interpreter per session.
type Local struct {
	sessions *session.Manager
	shared   *interpreter.Shared
	opts     LocalOptions
}

var (
	_ Executor  = (*Local)(nil)
	_ Inspector = (*Local)(nil)
)

// NewLocal creates the in-process backend.
func NewLocal(opts LocalOptions) *Local {
	if opts.Interpreter.Shared == nil {
		opts.Interpreter.Shared = interpreter.ProcessShared()
	}
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	if opts.JanitorInterval <= 0 && opts.IdleTTL > 0 {
		opts.JanitorInterval = opts.IdleTTL / 4
	}
	return &Local{
		sessions: session.NewManager(session.InterpreterFactory(opts.Interpreter)),
		shared:   opts.Interpreter.Shared,
		opts:     opts,
	}
}

// RunJanitor evicts idle sessions until ctx is done.
func (l *Local) RunJanitor(ctx context.Context) {
	l.sessions.Run(ctx, l.opts.JanitorInterval, l.opts.IdleTTL)
}

// Execute implements Executor.
func (l *Local) Execute(ctx context.Context, req api.ExecuteRequest) (*api.Observation, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, api.NewInvalidRequestError("code", "code is required")
	}
	timeout := l.opts.Limits.Clamp(req.Timeout())

	id := req.SessionID
	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		s, created, err := l.sessions.ResolveOrCreate(id)
		if err != nil {
			return nil, sessionError(err)
		}
		id = s.ID

		if err := s.Acquire(ctx); err != nil {
			return api.NewErrorObservation(id, api.ErrorKindCancelled, "execution cancelled while waiting for the session: "+err.Error()), nil
		}
		if s.Closed() {
			s.Release()
			continue
		}

		debug.Log("executor", "executing", "session_id", id, "created", created, "timeout", timeout.String())
		s.Touch(time.Now())
		obs, err := s.Context().Run(ctx, req.Code, timeout)
		s.Touch(time.Now())
		s.Release()
		if errors.Is(err, interpreter.ErrClosed) {
			continue
		}
		if err != nil {
			return nil, api.NewServerError(err.Error())
		}

		observability.ExecutionsTotal.WithLabelValues("local", string(obs.Status)).Inc()
		observability.ExecutionDuration.WithLabelValues("local").Observe(float64(obs.ExecutionTimeMs) / 1000)
		if obs.Failed() {
			debug.Log("executor", "execution failed", "session_id", id, "kind", string(obs.Error.Kind))
		}
		return obs, nil
	}

	slog.Warn("session closed repeatedly during execution", "session_id", id)
	return nil, api.NewUnavailableError(fmt.Sprintf("session %s was closed while executing", id))
}

// CreateSession implements Executor.
func (l *Local) CreateSession(_ context.Context) (string, error) {
	s, _, err := l.sessions.ResolveOrCreate("")
	if err != nil {
		return "", sessionError(err)
	}
	return s.ID, nil
}

// DeleteSession implements Executor.
func (l *Local) DeleteSession(_ context.Context, id string) error {
	if !l.sessions.Teardown(id) {
		return api.NewNotFoundError(fmt.Sprintf("session %s not found", id))
	}
	return nil
}

// Session implements Inspector.
func (l *Local) Session(ctx context.Context, id string) (*api.SessionInfo, error) {
	s, err := l.sessions.Get(id)
	if err != nil {
		return nil, api.NewNotFoundError(fmt.Sprintf("session %s not found", id))
	}
	info, err := s.Info(ctx)
	if errors.Is(err, session.ErrNotFound) {
		return nil, api.NewNotFoundError(fmt.Sprintf("session %s not found", id))
	}
	if err != nil {
		return nil, api.NewUnavailableError(err.Error())
	}
	return info, nil
}

// Sessions implements Inspector.
func (l *Local) Sessions(_ context.Context) ([]api.SessionInfo, error) {
	list := l.sessions.List()
	out := make([]api.SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, s.Summary())
	}
	return out, nil
}

// Globals returns the process-wide shared namespace rendered as strings.
func (l *Local) Globals() map[string]string {
	return l.shared.Snapshot()
}

// Health implements Executor.
func (l *Local) Health(_ context.Context) error {
	return nil
}

// Close implements Executor.
func (l *Local) Close() error {
	l.sessions.Close()
	return nil
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrInvalidID):
		return api.NewInvalidRequestError("session_id", err.Error())
	case errors.Is(err, session.ErrClosed):
		return api.NewUnavailableError(err.Error())
	default:
		return api.NewServerError(err.Error())
	}
}
