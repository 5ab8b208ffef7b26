// Package noop provides an authenticator that admits every caller as the
// anonymous identity. It backs the "none" auth mode.
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/datasci/pkg/auth"
)

// Authenticator votes Yes for every request.
type Authenticator struct{}

// Authenticate implements auth.Authenticator.
func (Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{Decision: auth.Yes, Identity: auth.Anonymous()}
}
