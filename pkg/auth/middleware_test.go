package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/datasci/pkg/api"
)

// bearerAuth accepts the token "good" with the given scopes.
type bearerAuth struct{ scopes []string }

func (b bearerAuth) Authenticate(_ context.Context, r *http.Request) AuthResult {
	switch r.Header.Get("Authorization") {
	case "":
		return AuthResult{Decision: Abstain}
	case "Bearer good":
		return AuthResult{Decision: Yes, Identity: &Identity{Subject: "agent", ServiceTier: "default", Scopes: b.scopes}}
	case "Bearer nosubject":
		return AuthResult{Decision: Yes, Identity: &Identity{}}
	default:
		return AuthResult{Decision: No, Err: ErrUnauthenticated}
	}
}

func TestMiddleware(t *testing.T) {
	var gotIdentity *Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	chain := NewChain(bearerAuth{scopes: []string{ScopeExecute}})
	h := Middleware(chain, MiddlewareOptions{Policy: RoutePolicy})(next)

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
		wantType   api.ErrorType
	}{
		{"health bypasses auth", http.MethodGet, "/health", "", http.StatusOK, ""},
		{"metrics bypasses auth", http.MethodGet, "/metrics", "", http.StatusOK, ""},
		{"no credentials", http.MethodPost, "/execute", "", http.StatusUnauthorized, api.ErrorTypeUnauthenticated},
		{"bad credentials", http.MethodPost, "/execute", "Bearer bad", http.StatusUnauthorized, api.ErrorTypeUnauthenticated},
		{"empty subject", http.MethodPost, "/execute", "Bearer nosubject", http.StatusInternalServerError, api.ErrorTypeServerError},
		{"execute allowed", http.MethodPost, "/execute", "Bearer good", http.StatusOK, ""},
		{"mcp allowed", http.MethodPost, "/mcp", "Bearer good", http.StatusOK, ""},
		{"sessions need scope", http.MethodDelete, "/sessions/abc", "Bearer good", http.StatusForbidden, api.ErrorTypeUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotIdentity = nil
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantType != "" {
				var resp api.ErrorResponse
				if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
					t.Fatalf("decode error body: %v", err)
				}
				if resp.Error.Type != tt.wantType {
					t.Errorf("error type = %q, want %q", resp.Error.Type, tt.wantType)
				}
			}
			if tt.wantStatus == http.StatusOK && tt.header != "" && (gotIdentity == nil || gotIdentity.Subject != "agent") {
				t.Errorf("identity not in context: %+v", gotIdentity)
			}
		})
	}
}

func TestMiddlewareRateLimit(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	chain := NewChain(bearerAuth{})
	h := Middleware(chain, MiddlewareOptions{Limiter: NewInProcessLimiter(nil, 2)})(next)

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/execute", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i+1, codes[i], want[i])
		}
	}
}

func TestMiddlewareWithoutPolicyIgnoresScopes(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := Middleware(NewChain(bearerAuth{}), MiddlewareOptions{})(next)

	req := httptest.NewRequest(http.MethodDelete, "/sessions/abc", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
