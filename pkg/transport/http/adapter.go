package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/debug"
	"github.com/rhuss/datasci/pkg/transport"
)

// Adapter serves the interpreter API over HTTP.
type Adapter struct {
	exec      transport.ExecuteHandler
	sessions  transport.SessionService
	inspector transport.SessionInspector // nil if the backend cannot list sessions
	globals   transport.GlobalsProvider  // nil if the backend has no shared state
	inflight  *transport.InFlightRegistry
	mux       *http.ServeMux
	config    Config
	started   time.Time
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	Version     string
	// Metrics serves GET /metrics when set.
	Metrics bool
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 10 << 20, // 10 MB
		Version:     "dev",
		Metrics:     true,
	}
}

// NewAdapter creates an HTTP adapter. exec runs snippets; sessions covers
// the session lifecycle. When sessions also implements
// transport.SessionInspector or transport.GlobalsProvider the matching
// read endpoints are served. Middleware is applied to exec in order.
func NewAdapter(exec transport.ExecuteHandler, sessions transport.SessionService, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		exec = transport.Chain(middlewares...)(exec)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		exec:     exec,
		sessions: sessions,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
		started:  time.Now(),
	}
	a.inspector, _ = sessions.(transport.SessionInspector)
	a.globals, _ = sessions.(transport.GlobalsProvider)

	a.mux.HandleFunc("POST /execute", a.handleExecute)
	a.mux.HandleFunc("POST /sessions", a.handleCreateSession)
	a.mux.HandleFunc("GET /sessions", a.handleListSessions)
	a.mux.HandleFunc("GET /sessions/{id}", a.handleGetSession)
	a.mux.HandleFunc("DELETE /sessions/{id}", a.handleDeleteSession)
	a.mux.HandleFunc("GET /globals", a.handleGlobals)
	a.mux.HandleFunc("GET /health", a.handleHealth)
	if cfg.Metrics {
		a.mux.Handle("GET /metrics", promhttp.Handler())
	}

	return a
}

// Mount serves h under pattern on the adapter's mux.
func (a *Adapter) Mount(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// InFlight returns the registry of running executions.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// Handler returns the http.Handler for this adapter, wrapped in HTTP-level
// request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// httpRequestIDMiddleware puts a request ID into the context, taken from
// the X-Request-ID header or generated, and echoes it in the response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

// handleExecute handles POST /execute.
func (a *Adapter) handleExecute(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return
	}
	if apiErr := validateExecute(req); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	token := a.inflight.Register(transport.RequestIDFromContext(ctx), req.SessionID, cancel)
	defer a.inflight.Remove(token)

	obs, err := a.exec.Execute(ctx, req)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

func validateExecute(req api.ExecuteRequest) *api.APIError {
	if req.Code == "" {
		return api.NewInvalidRequestError("code", "code is required")
	}
	if req.SessionID != "" && !api.ValidateSessionID(req.SessionID) {
		return api.NewInvalidRequestError("session_id", "malformed session ID")
	}
	if req.TimeoutSeconds < 0 {
		return api.NewInvalidRequestError("timeout_seconds", "timeout_seconds must not be negative")
	}
	return nil
}

// handleCreateSession handles POST /sessions.
func (a *Adapter) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := a.sessions.CreateSession(r.Context())
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	debug.Log("transport", "session created", "session_id", id)
	writeJSON(w, http.StatusCreated, api.CreateSessionResponse{SessionID: id})
}

// handleListSessions handles GET /sessions.
func (a *Adapter) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if a.inspector == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "session listing is not available for this backend"),
			http.StatusNotImplemented,
		)
		return
	}
	list, err := a.inspector.Sessions(r.Context())
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	if list == nil {
		list = []api.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, SessionList{Object: "list", Data: list})
}

// handleGetSession handles GET /sessions/{id}.
func (a *Adapter) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if a.inspector == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "session inspection is not available for this backend"),
			http.StatusNotImplemented,
		)
		return
	}
	id := r.PathValue("id")
	if !api.ValidateSessionID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed session ID"))
		return
	}
	info, err := a.inspector.Session(r.Context(), id)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleDeleteSession handles DELETE /sessions/{id}. Running executions in
// the session are cancelled first. Deleting an unknown session succeeds
// unless ?strict=true is given.
func (a *Adapter) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateSessionID(id) {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "malformed session ID"))
		return
	}
	strict, _ := strconv.ParseBool(r.URL.Query().Get("strict"))

	if ids := a.inflight.CancelSession(id); len(ids) > 0 {
		debug.Log("transport", "cancelled running executions", "session_id", id, "request_ids", ids)
	}

	err := a.sessions.DeleteSession(r.Context(), id)
	if apiErr := api.AsAPIError(err); apiErr != nil && apiErr.Type == api.ErrorTypeNotFound && !strict {
		err = nil
	}
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGlobals handles GET /globals.
func (a *Adapter) handleGlobals(w http.ResponseWriter, r *http.Request) {
	globals := map[string]string{}
	if a.globals != nil {
		globals = a.globals.Globals()
	}
	writeJSON(w, http.StatusOK, GlobalsResponse{Globals: globals})
}

// handleHealth handles GET /health. It reports liveness of the process and
// the backend; it does not touch any session.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Sessions:      -1,
		UptimeSeconds: int64(time.Since(a.started).Seconds()),
		Version:       a.config.Version,
		InFlight:      a.inflight.Len(),
	}
	if a.inspector != nil {
		if list, err := a.inspector.Sessions(r.Context()); err == nil {
			resp.Sessions = len(list)
		}
	}

	status := http.StatusOK
	if err := a.sessions.Health(r.Context()); err != nil {
		resp.Status = "unavailable"
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
