package api

import (
	"fmt"
	"time"
)

// ErrorKind classifies why an execution (or the step that should have
// produced one) failed.
type ErrorKind string

const (
	ErrorKindSyntax       ErrorKind = "syntax_error"
	ErrorKindCompile      ErrorKind = "compile_error"
	ErrorKindRuntime      ErrorKind = "runtime_error"
	ErrorKindTimeout      ErrorKind = "timeout"
	ErrorKindCancelled    ErrorKind = "cancelled"
	ErrorKindParseFailure ErrorKind = "parse_failure"
	ErrorKindTransport    ErrorKind = "transport_error"
	ErrorKindModel        ErrorKind = "model_error"
)

// ErrorInfo is the raised_error of an Observation. Message holds the error
// text only, never a native stack trace.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ErrorInfo) String() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ExecutionStatus is the coarse outcome reported next to an Observation.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusError   ExecutionStatus = "error"
	StatusTimeout ExecutionStatus = "timeout"
)

// StatusFor derives the execution status from an optional error.
func StatusFor(err *ErrorInfo) ExecutionStatus {
	switch {
	case err == nil:
		return StatusSuccess
	case err.Kind == ErrorKindTimeout:
		return StatusTimeout
	default:
		return StatusError
	}
}

// Observation is the structured result of one dispatched action. It is also
// the response body of POST /execute, so the local and remote executors
// hand the agent the exact same shape.
type Observation struct {
	SessionID       string          `json:"session_id"`
	Status          ExecutionStatus `json:"status"`
	Stdout          string          `json:"stdout"`
	Stderr          string          `json:"stderr"`
	Result          string          `json:"result,omitempty"`
	Error           *ErrorInfo      `json:"error,omitempty"`
	Artifacts       []string        `json:"artifacts"`
	Truncated       bool            `json:"truncated"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
}

// Failed reports whether the observation carries a raised error.
func (o *Observation) Failed() bool {
	return o != nil && o.Error != nil
}

// NewErrorObservation builds an observation for a failure that happened
// before or around execution (parse failures, transport and model errors).
func NewErrorObservation(sessionID string, kind ErrorKind, message string) *Observation {
	errInfo := &ErrorInfo{Kind: kind, Message: message}
	return &Observation{
		SessionID: sessionID,
		Status:    StatusFor(errInfo),
		Error:     errInfo,
		Artifacts: []string{},
	}
}

// ExecuteRequest is the request body of POST /execute and the argument of
// Executor.Execute. An empty SessionID asks for a new session.
type ExecuteRequest struct {
	SessionID      string  `json:"session_id,omitempty"`
	Code           string  `json:"code"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
}

// Timeout converts TimeoutSeconds to a duration. Zero means "use the
// executor default".
func (r ExecuteRequest) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(r.TimeoutSeconds * float64(time.Second))
}

// SessionInfo describes a live session.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	Variables []string  `json:"variables,omitempty"`
	OutputDir string    `json:"output_dir,omitempty"`
}

// CreateSessionResponse is returned by POST /sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}
