package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/executor"
	"github.com/rhuss/datasci/pkg/interpreter"
	"github.com/rhuss/datasci/pkg/transport"
)

// connect serves the tools for l over in-memory transports and returns a
// connected client session.
func connect(t *testing.T, l *executor.Local, inflight *transport.InFlightRegistry) *mcp.ClientSession {
	t.Helper()
	srv := NewServer(l, l, Options{InFlight: inflight})

	ctx, cancel := context.WithCancel(context.Background())
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	go func() {
		_ = srv.Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		session.Close()
		cancel()
	})
	return session
}

func newLocal(t *testing.T) *executor.Local {
	t.Helper()
	l := executor.NewLocal(executor.LocalOptions{
		Interpreter: interpreter.Options{OutputRoot: t.TempDir(), Shared: interpreter.NewShared()},
		Limits:      executor.Limits{Default: 5 * time.Second, Max: 10 * time.Second},
	})
	t.Cleanup(func() { l.Close() })
	return l
}

func call(t *testing.T, s *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := s.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func text(res *mcp.CallToolResult) string {
	var b strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func TestListTools(t *testing.T) {
	s := connect(t, newLocal(t), nil)

	res, err := s.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, tool := range res.Tools {
		got[tool.Name] = true
	}
	for _, want := range []string{"execute_code", "create_session", "delete_session"} {
		if !got[want] {
			t.Errorf("tool %q not listed", want)
		}
	}
}

func TestExecuteCodeKeepsSessionState(t *testing.T) {
	l := newLocal(t)
	s := connect(t, l, nil)

	res := call(t, s, "create_session", map[string]any{})
	var created api.CreateSessionResponse
	if err := json.Unmarshal([]byte(text(res)), &created); err != nil || created.SessionID == "" {
		t.Fatalf("create_session returned %q (%v)", text(res), err)
	}

	call(t, s, "execute_code", map[string]any{"session_id": created.SessionID, "code": "n := 5"})
	res = call(t, s, "execute_code", map[string]any{"session_id": created.SessionID, "code": "n * n"})
	if res.IsError {
		t.Fatalf("execute_code failed: %s", text(res))
	}
	var obs api.Observation
	if err := json.Unmarshal([]byte(text(res)), &obs); err != nil {
		t.Fatal(err)
	}
	if obs.Result != "25" || obs.SessionID != created.SessionID {
		t.Errorf("observation = %+v", obs)
	}

	res = call(t, s, "delete_session", map[string]any{"session_id": created.SessionID})
	if !strings.Contains(text(res), `"deleted":true`) {
		t.Errorf("delete_session = %s", text(res))
	}
	res = call(t, s, "delete_session", map[string]any{"session_id": created.SessionID})
	if res.IsError || !strings.Contains(text(res), `"deleted":false`) {
		t.Errorf("second delete_session = %s", text(res))
	}
	if sessions, _ := l.Sessions(context.Background()); len(sessions) != 0 {
		t.Errorf("%d sessions left", len(sessions))
	}
}

func TestExecuteCodeErrors(t *testing.T) {
	s := connect(t, newLocal(t), nil)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"empty code", map[string]any{"code": ""}, "invalid_request"},
		{"bad session", map[string]any{"code": "1", "session_id": "a/b"}, "malformed session ID"},
		{"code failure", map[string]any{"code": "panic(\"boom\")"}, "runtime_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(t, s, "execute_code", tt.args)
			if !res.IsError {
				t.Errorf("IsError = false, want true")
			}
			if !strings.Contains(text(res), tt.want) {
				t.Errorf("content = %q, want %q", text(res), tt.want)
			}
		})
	}
}

func TestExecuteCodeRegistersInFlight(t *testing.T) {
	inflight := transport.NewInFlightRegistry()
	l := newLocal(t)
	s := connect(t, l, inflight)

	done := make(chan *mcp.CallToolResult, 1)
	go func() {
		res, _ := s.CallTool(context.Background(), &mcp.CallToolParams{
			Name:      "execute_code",
			Arguments: map[string]any{"session_id": "busy", "code": "import \"time\"\ntime.Sleep(30 * time.Second)", "timeout_seconds": 10},
		})
		done <- res
	}()

	deadline := time.Now().Add(5 * time.Second)
	for inflight.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("execution never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if ids := inflight.CancelSession("busy"); len(ids) != 1 {
		t.Fatalf("CancelSession = %v, want one execution", ids)
	}

	select {
	case res := <-done:
		if res == nil || !strings.Contains(text(res), "cancelled") {
			t.Errorf("result = %v, want a cancelled observation", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("execution not cancelled")
	}
}
