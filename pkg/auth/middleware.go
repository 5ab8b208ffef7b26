package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/debug"
	"github.com/rhuss/datasci/pkg/observability"
	"github.com/rhuss/datasci/pkg/transport"
)

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/health", "/metrics"}

// Policy returns the scope a request needs, or "" when any authenticated
// caller may proceed.
type Policy func(r *http.Request) string

// RoutePolicy maps the interpreter API to its scopes.
func RoutePolicy(r *http.Request) string {
	switch {
	case r.URL.Path == "/execute", strings.HasPrefix(r.URL.Path, "/mcp"):
		return ScopeExecute
	case r.URL.Path == "/sessions", strings.HasPrefix(r.URL.Path, "/sessions/"), r.URL.Path == "/globals":
		return ScopeSessions
	}
	return ""
}

// MiddlewareOptions configures Middleware.
type MiddlewareOptions struct {
	Limiter RateLimiter
	Bypass  []string
	// Policy enables scope checks when set.
	Policy Policy
}

// Middleware authenticates every request not listed in Bypass, checks the
// scope the Policy requires and applies the rate limiter. The identity is
// stored in the request context.
func Middleware(chain *AuthChain, opts MiddlewareOptions) func(http.Handler) http.Handler {
	if opts.Bypass == nil {
		opts.Bypass = DefaultBypassEndpoints
	}
	bypass := make(map[string]bool, len(opts.Bypass))
	for _, ep := range opts.Bypass {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)
			if result.Decision != Yes || result.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", errString(result.Err),
				)
				transport.WriteAPIError(w, api.NewUnauthenticatedError(ErrUnauthenticated.Error()))
				return
			}
			id := result.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}

			if opts.Policy != nil {
				if scope := opts.Policy(r); scope != "" && !id.HasScope(scope) {
					slog.Warn("missing scope", "subject", id.Subject, "scope", scope, "path", r.URL.Path)
					transport.WriteErrorResponse(w,
						&api.APIError{Type: api.ErrorTypeUnauthenticated, Message: ErrForbidden.Error() + ": requires " + scope},
						http.StatusForbidden,
					)
					return
				}
			}

			if opts.Limiter != nil {
				if err := opts.Limiter.Allow(r.Context(), id); err != nil {
					tier := id.ServiceTier
					if tier == "" {
						tier = "default"
					}
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", tier)
					observability.RateLimitRejectedTotal.WithLabelValues(tier).Inc()
					transport.WriteAPIError(w, api.NewTooManyRequestsError(err.Error()))
					return
				}
			}

			debug.Log("auth", "authenticated", "subject", id.Subject, "path", r.URL.Path)
			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), id)))
		})
	}
}

func errString(err error) string {
	if err == nil {
		return ErrUnauthenticated.Error()
	}
	return err.Error()
}
