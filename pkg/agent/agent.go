package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/datasci/pkg/action"
	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/debug"
	"github.com/rhuss/datasci/pkg/executor"
	"github.com/rhuss/datasci/pkg/model"
	"github.com/rhuss/datasci/pkg/observability"
	"github.com/rhuss/datasci/pkg/storage"
)

// ErrSessionSwap is reported when the executor answers for a different
// session than the one the run is bound to. Continuing would mix the state
// of two sessions, so the run fails.
var ErrSessionSwap = errors.New("session id changed unexpectedly")

// State is the position of the loop controller in its state machine.
type State string

const (
	StateAwaitingModel     State = "awaiting_model"
	StateDispatchingAction State = "dispatching_action"
	StateTerminated        State = "terminated"
)

// Event is delivered to an Observer for every turn and once on termination.
type Event struct {
	State     State
	Iteration int
	Turn      *api.Turn
	Result    *Result
}

// Observer receives loop events. It is called synchronously from Run and
// must not call back into the Agent.
type Observer func(Event)

// Option configures an Agent.
type Option func(*Agent)

// WithStore saves every finished run to store.
func WithStore(store storage.RunStore) Option {
	return func(a *Agent) { a.store = store }
}

// WithObserver registers an observer for loop events.
func WithObserver(o Observer) Option {
	return func(a *Agent) { a.observer = o }
}

// Agent drives the ReAct loop. It runs one task at a time; concurrent Run
// calls are serialized. Create one Agent per independent task stream.
type Agent struct {
	model    model.Model
	exec     executor.Executor
	cfg      Config
	store    storage.RunStore
	observer Observer

	mu        sync.Mutex
	sessionID string
	owned     bool
	log       *slog.Logger
}

// New creates an Agent. The model and executor must not be nil.
func New(m model.Model, exec executor.Executor, cfg Config, opts ...Option) (*Agent, error) {
	if m == nil {
		return nil, fmt.Errorf("agent: model must not be nil")
	}
	if exec == nil {
		return nil, fmt.Errorf("agent: executor must not be nil")
	}
	a := &Agent{
		model:     m,
		exec:      exec,
		cfg:       cfg,
		sessionID: cfg.SessionID,
		log:       debug.Logger("agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// SessionID returns the session the agent is bound to, if any.
func (a *Agent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// run is the mutable state of one Run call.
type run struct {
	conv        *conversation
	iteration   int
	modelErrors int
	lastThought string
	result      *Result
}

// Run executes task through the loop. The returned error is non-nil only
// for an invalid task; every terminal outcome, including failures, is
// reported through Result.Status.
func (a *Agent) Run(ctx context.Context, task string) (*Result, error) {
	if strings.TrimSpace(task) == "" {
		return nil, api.NewInvalidRequestError("task", "task is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	r := &run{
		conv: newConversation(a.cfg.systemPrompt(), task),
		result: &Result{
			RunID:     api.NewRunID(),
			Task:      task,
			Model:     a.model.Name(),
			CreatedAt: time.Now().UTC(),
		},
	}
	a.log.Info("agent run started", "run_id", r.result.RunID, "model", r.result.Model,
		"max_iterations", a.cfg.maxIterations())

	a.loop(ctx, r)
	return a.finish(ctx, r), nil
}

func (a *Agent) loop(ctx context.Context, r *run) {
	maxIterations := a.cfg.maxIterations()

	for r.iteration < maxIterations {
		if err := ctx.Err(); err != nil {
			a.terminate(r, api.RunStatusCancelled, "", err)
			return
		}

		r.iteration++
		a.emit(r, StateAwaitingModel, nil)

		start := time.Now()
		raw, err := a.model.Complete(ctx, r.conv.messages())
		debug.Log("agent", "model call finished", "iteration", r.iteration, "duration", time.Since(start), "error", err)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				a.terminate(r, api.RunStatusCancelled, "", ctxErr)
				return
			}
			if a.modelFailed(r, err) {
				return
			}
			continue
		}
		r.modelErrors = 0
		a.record(r, StateAwaitingModel, api.Turn{Kind: api.TurnModel, Iteration: r.iteration, Content: raw})

		act := action.Parse(raw)
		if act.Thought != "" {
			r.lastThought = act.Thought
		}
		a.record(r, StateDispatchingAction, api.Turn{
			Kind:       api.TurnAction,
			Iteration:  r.iteration,
			Role:       string(model.RoleAssistant),
			Content:    assistantMessage(act),
			ActionKind: string(act.Kind),
		})

		switch act.Kind {
		case action.KindFinalAnswer:
			answer := act.Answer
			if a.cfg.ExecuteFinalAnswerCode {
				answer = a.runAnswerCode(ctx, answer)
			}
			a.terminate(r, api.RunStatusCompleted, answer, nil)
			return

		case action.KindParseFailure:
			a.log.Warn("model reply could not be parsed", "iteration", r.iteration, "reason", act.Reason)
			obs := api.NewErrorObservation(a.sessionID, api.ErrorKindParseFailure, act.Reason)
			a.observe(r, correctiveMessage(act), obs)

		case action.KindExecuteCode:
			obs, err := a.execute(ctx, act.Code)
			if err != nil {
				if errors.Is(err, ErrSessionSwap) {
					a.observe(r, "Observation: "+Summarize(obs, a.cfg.maxObservationChars()), obs)
					a.terminate(r, api.RunStatusFailed, r.lastThought, err)
					return
				}
				a.terminate(r, api.RunStatusCancelled, "", err)
				return
			}
			a.observe(r, "Observation: "+Summarize(obs, a.cfg.maxObservationChars()), obs)
			if obs.Error != nil && obs.Error.Kind == api.ErrorKindCancelled && ctx.Err() != nil {
				a.terminate(r, api.RunStatusCancelled, "", ctx.Err())
				return
			}
		}
	}

	a.log.Warn("iteration budget exhausted", "run_id", r.result.RunID, "iterations", r.iteration)
	a.terminate(r, api.RunStatusBudgetExhausted, r.lastThought, nil)
}

// modelFailed records a failed model call and reports whether the run
// must stop.
func (a *Agent) modelFailed(r *run, err error) bool {
	r.modelErrors++
	a.log.Warn("model call failed", "iteration", r.iteration, "consecutive", r.modelErrors, "error", err.Error())

	obs := api.NewErrorObservation(a.sessionID, api.ErrorKindModel, err.Error())
	a.observe(r, modelErrorMessage(err), obs)

	if r.modelErrors >= a.cfg.maxConsecutiveModelErrors() {
		a.terminate(r, api.RunStatusFailed, r.lastThought,
			fmt.Errorf("%d consecutive model failures: %w", r.modelErrors, err))
		return true
	}
	return false
}

// execute runs code in the agent's session. Infrastructure failures become
// transport_error observations; only caller cancellation and session swaps
// are returned as errors.
func (a *Agent) execute(ctx context.Context, code string) (*api.Observation, error) {
	req := api.ExecuteRequest{
		SessionID:      a.sessionID,
		Code:           code,
		TimeoutSeconds: a.cfg.ExecTimeout.Seconds(),
	}
	obs, err := a.exec.Execute(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		a.log.Warn("executor failed", "session_id", a.sessionID, "error", err.Error())
		return api.NewErrorObservation(a.sessionID, api.ErrorKindTransport, err.Error()), nil
	}

	switch {
	case obs.SessionID == "":
	case a.sessionID == "":
		a.sessionID = obs.SessionID
		a.owned = true
		debug.Log("agent", "bound to session", "session_id", a.sessionID)
	case obs.SessionID != a.sessionID:
		a.log.Error("session swap detected", "expected", a.sessionID, "got", obs.SessionID)
		return obs, fmt.Errorf("%w: expected %s, got %s", ErrSessionSwap, a.sessionID, obs.SessionID)
	}
	return obs, nil
}

// observe appends an observation turn sent to the model as a user message.
func (a *Agent) observe(r *run, content string, obs *api.Observation) {
	a.record(r, StateDispatchingAction, api.Turn{
		Kind:        api.TurnObservation,
		Iteration:   r.iteration,
		Role:        string(model.RoleUser),
		Content:     content,
		Observation: obs,
	})
}

func (a *Agent) record(r *run, state State, t api.Turn) {
	t = r.conv.add(t)
	a.emit(r, state, &t)
}

func (a *Agent) emit(r *run, state State, t *api.Turn) {
	if a.observer == nil {
		return
	}
	ev := Event{State: state, Iteration: r.iteration, Turn: t}
	if state == StateTerminated {
		ev.Result = r.result
	}
	a.observer(ev)
}

func (a *Agent) terminate(r *run, status api.RunStatus, answer string, err error) {
	r.result.Status = status
	r.result.Answer = answer
	r.result.Err = err
}

// finish fills in the result, records metrics, saves the run and
// notifies the observer.
func (a *Agent) finish(ctx context.Context, r *run) *Result {
	res := r.result
	res.Iterations = r.iteration
	res.SessionID = a.sessionID
	res.Turns = r.conv.snapshot()
	res.CompletedAt = time.Now().UTC()

	observability.AgentRunsTotal.WithLabelValues(string(res.Status)).Inc()
	observability.AgentIterations.Observe(float64(res.Iterations))

	attrs := []any{"run_id", res.RunID, "status", res.Status, "iterations", res.Iterations, "session_id", res.SessionID}
	if res.Err != nil {
		attrs = append(attrs, "error", res.Err.Error())
	}
	a.log.Info("agent run finished", attrs...)

	if a.store != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := a.store.SaveRun(saveCtx, res.Record()); err != nil {
			a.log.Warn("failed to save run", "run_id", res.RunID, "error", err.Error())
		}
		cancel()
	}

	a.emit(r, StateTerminated, nil)
	return res
}

// Close deletes the session the agent created for itself. A session given
// through Config.SessionID belongs to the caller and is left alone.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.owned || a.sessionID == "" {
		return nil
	}
	id := a.sessionID
	a.sessionID = ""
	a.owned = false

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := a.exec.DeleteSession(ctx, id)
	if apiErr := api.AsAPIError(err); apiErr != nil && apiErr.Type == api.ErrorTypeNotFound {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	a.log.Info("agent session deleted", "session_id", id)
	return nil
}
