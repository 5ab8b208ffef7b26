// Package auth authenticates callers of the interpreter service.
//
// Authenticators vote on each request: Yes with an identity, No when
// credentials are present but wrong, or Abstain when they do not
// recognise the credential type. An AuthChain asks them in order and
// falls back to a default decision when all abstain.
//
// The HTTP middleware runs the chain, optionally checks the scope a route
// requires and enforces a per-subject rate limit. Liveness and metrics
// endpoints bypass it.
package auth
