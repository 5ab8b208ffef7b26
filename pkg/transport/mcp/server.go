// Package mcp exposes the interpreter service as Model Context Protocol
// tools over the streamable HTTP transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/debug"
	"github.com/rhuss/datasci/pkg/transport"
)

// ExecuteCodeInput is the argument of the execute_code tool.
type ExecuteCodeInput struct {
	Code           string  `json:"code" jsonschema:"Go source to run. Top-level statements are allowed and state persists across calls in a session."`
	SessionID      string  `json:"session_id,omitempty" jsonschema:"Session to run in. Omit to create a new session."`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty" jsonschema:"Execution timeout in seconds."`
}

// SessionInput names a session.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"Session identifier."`
}

// DeleteSessionOutput is the result of the delete_session tool.
type DeleteSessionOutput struct {
	SessionID string `json:"session_id"`
	Deleted   bool   `json:"deleted"`
}

// Options configures the MCP server.
type Options struct {
	Name    string
	Version string
	// InFlight, when set, lets session teardown cancel executions started
	// through MCP.
	InFlight *transport.InFlightRegistry
}

// Server holds the MCP tool server.
type Server struct {
	server   *mcp.Server
	exec     transport.ExecuteHandler
	sessions transport.SessionService
	inflight *transport.InFlightRegistry
}

// NewServer registers the execute_code, create_session and delete_session
// tools backed by exec and sessions.
func NewServer(exec transport.ExecuteHandler, sessions transport.SessionService, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "datasci-interpreter"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		server:   mcp.NewServer(&mcp.Implementation{Name: opts.Name, Version: opts.Version}, nil),
		exec:     exec,
		sessions: sessions,
		inflight: opts.InFlight,
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "execute_code",
		Description: "Execute Go code in a persistent interpreter session and return its output, result value, errors and generated files.",
	}, s.executeCode)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_session",
		Description: "Create an empty interpreter session and return its identifier.",
	}, s.createSession)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_session",
		Description: "Delete an interpreter session and everything bound in it.",
	}, s.deleteSession)

	return s
}

// Handler returns the streamable HTTP handler to mount at /mcp.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// Run serves the tools over t until ctx is done or the peer disconnects.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	return s.server.Run(ctx, t)
}

func (s *Server) executeCode(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteCodeInput) (*mcp.CallToolResult, any, error) {
	if in.Code == "" {
		return toolError(api.NewInvalidRequestError("code", "code is required")), nil, nil
	}
	if in.SessionID != "" && !api.ValidateSessionID(in.SessionID) {
		return toolError(api.NewInvalidRequestError("session_id", "malformed session ID")), nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.inflight != nil {
		id := transport.RequestIDFromContext(ctx)
		if id == "" {
			id = transport.NewRequestID()
			ctx = transport.ContextWithRequestID(ctx, id)
		}
		token := s.inflight.Register(id, in.SessionID, cancel)
		defer s.inflight.Remove(token)
	}

	obs, err := s.exec.Execute(ctx, api.ExecuteRequest{
		SessionID:      in.SessionID,
		Code:           in.Code,
		TimeoutSeconds: in.TimeoutSeconds,
	})
	if err != nil {
		return toolError(err), nil, nil
	}
	debug.Log("transport", "mcp execute_code", "session_id", obs.SessionID, "status", string(obs.Status))
	res := result(obs)
	res.IsError = obs.Failed()
	return res, nil, nil
}

func (s *Server) createSession(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	id, err := s.sessions.CreateSession(ctx)
	if err != nil {
		return toolError(err), nil, nil
	}
	return result(api.CreateSessionResponse{SessionID: id}), nil, nil
}

func (s *Server) deleteSession(ctx context.Context, _ *mcp.CallToolRequest, in SessionInput) (*mcp.CallToolResult, any, error) {
	if !api.ValidateSessionID(in.SessionID) {
		return toolError(api.NewInvalidRequestError("session_id", "malformed session ID")), nil, nil
	}
	if s.inflight != nil {
		s.inflight.CancelSession(in.SessionID)
	}

	out := &DeleteSessionOutput{SessionID: in.SessionID, Deleted: true}
	err := s.sessions.DeleteSession(ctx, in.SessionID)
	if apiErr := api.AsAPIError(err); apiErr != nil && apiErr.Type == api.ErrorTypeNotFound {
		out.Deleted = false
		err = nil
	}
	if err != nil {
		return toolError(err), nil, nil
	}
	return result(out), nil, nil
}

func toolError(err error) *mcp.CallToolResult {
	msg := err.Error()
	if apiErr := api.AsAPIError(err); apiErr != nil {
		msg = fmt.Sprintf("%s: %s", apiErr.Type, apiErr.Message)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// result carries v both as JSON text and as structured content.
func result(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError(api.NewServerError("encode result: " + err.Error()))
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(data)}},
		StructuredContent: json.RawMessage(data),
	}
}
