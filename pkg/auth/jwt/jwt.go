// Package jwt authenticates bearer JWTs signed with RSA keys published on a
// JWKS endpoint. The subject, service tier and scopes are read from
// configurable claims.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rhuss/datasci/pkg/auth"
)

// Config configures the authenticator.
type Config struct {
	// Issuer and Audience are checked when set.
	Issuer   string
	Audience string

	JWKSURL string

	// Claim names. Defaults: "sub", "tier" and "scope".
	SubjectClaim string
	TierClaim    string
	ScopesClaim  string

	// DefaultScopes apply to tokens that carry no scopes claim.
	DefaultScopes []string

	// CacheTTL bounds how long fetched keys are trusted. Default: 1h.
	CacheTTL time.Duration

	HTTPClient *http.Client
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.SubjectClaim == "" {
		out.SubjectClaim = "sub"
	}
	if out.TierClaim == "" {
		out.TierClaim = "tier"
	}
	if out.ScopesClaim == "" {
		out.ScopesClaim = "scope"
	}
	if out.CacheTTL <= 0 {
		out.CacheTTL = time.Hour
	}
	if out.HTTPClient == nil {
		out.HTTPClient = http.DefaultClient
	}
	return out
}

// Authenticator implements auth.Authenticator for JWTs.
type Authenticator struct {
	cfg    Config
	keys   *keySet
	parser *jwtlib.Parser
}

// New creates an authenticator. Keys are fetched lazily on first use.
func New(cfg Config) *Authenticator {
	cfg = cfg.withDefaults()

	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		cfg:    cfg,
		keys:   newKeySet(cfg.JWKSURL, cfg.HTTPClient, cfg.CacheTTL),
		parser: jwtlib.NewParser(opts...),
	}
}

// Authenticate abstains unless a Bearer token is present. A token that
// fails validation is a No vote.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if raw == "" {
		return reject(errors.New("empty bearer token"))
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return a.keys.key(ctx, kid)
	})
	if err != nil {
		slog.Debug("jwt rejected", "error", err)
		return reject(fmt.Errorf("invalid token: %w", err))
	}

	subject, _ := claims[a.cfg.SubjectClaim].(string)
	if subject == "" {
		return reject(fmt.Errorf("token has no %q claim", a.cfg.SubjectClaim))
	}

	id := &auth.Identity{
		Subject:  subject,
		Scopes:   scopes(claims[a.cfg.ScopesClaim]),
		Metadata: map[string]string{"issuer": stringClaim(claims, "iss")},
	}
	id.ServiceTier, _ = claims[a.cfg.TierClaim].(string)
	if id.Scopes == nil {
		id.Scopes = append([]string(nil), a.cfg.DefaultScopes...)
	}
	return auth.AuthResult{Decision: auth.Yes, Identity: id}
}

func reject(err error) auth.AuthResult {
	return auth.AuthResult{Decision: auth.No, Err: err}
}

func stringClaim(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// scopes accepts a space separated string or a JSON array of strings.
func scopes(v any) []string {
	var out []string
	switch v := v.(type) {
	case string:
		out = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
