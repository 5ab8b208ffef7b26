package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
)

// AuthDecision is the vote of an authenticator.
type AuthDecision int

const (
	// Yes: the credentials are valid and identify the caller.
	Yes AuthDecision = iota

	// No: credentials were presented but are invalid. The request is rejected.
	No

	// Abstain: the authenticator does not handle these credentials.
	Abstain
)

// Scopes understood by the interpreter service.
const (
	// ScopeExecute allows running code (POST /execute and the MCP tools).
	ScopeExecute = "interpreter:execute"

	// ScopeSessions allows creating, inspecting and deleting sessions.
	ScopeSessions = "interpreter:sessions"

	// ScopeAll grants every scope.
	ScopeAll = "*"
)

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // set when Decision == Yes
	Err      error     // set when Decision == No
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject identifies the caller and must not be empty.
	Subject string

	// ServiceTier selects the caller's rate limit.
	ServiceTier string

	// Scopes lists what the caller may do.
	Scopes []string

	// Metadata carries authenticator-specific attributes.
	Metadata map[string]string
}

// HasScope reports whether the identity was granted scope.
func (id *Identity) HasScope(scope string) bool {
	if id == nil {
		return false
	}
	return slices.Contains(id.Scopes, scope) || slices.Contains(id.Scopes, ScopeAll)
}

// Anonymous is the identity used when authentication is disabled.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", ServiceTier: "default", Scopes: []string{ScopeAll}}
}

type identityKey struct{}

// SetIdentity returns a copy of ctx carrying id. The middleware calls it
// once a request has been authenticated.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller stored by SetIdentity, or nil
// for requests that bypassed authentication.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// Authenticator examines request credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain asks authenticators in order until one votes Yes or No.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision applies when every authenticator abstains. Yes
	// admits the caller as Anonymous.
	DefaultDecision AuthDecision
}

// NewChain builds a chain that rejects callers no authenticator accepts.
func NewChain(authenticators ...Authenticator) *AuthChain {
	return &AuthChain{Authenticators: authenticators, DefaultDecision: No}
}

// Authenticate runs the chain.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		if result := authn.Authenticate(ctx, r); result.Decision != Abstain {
			return result
		}
	}
	if c.DefaultDecision == Yes {
		return AuthResult{Decision: Yes, Identity: Anonymous()}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}
