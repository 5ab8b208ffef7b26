// Package apikey authenticates bearer tokens against a fixed set of API
// keys. Only SHA-256 digests of the keys are kept in memory.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rhuss/datasci/pkg/auth"
)

// Key is one configured API key and the identity it grants.
type Key struct {
	Key      string
	Identity auth.Identity
}

type entry struct {
	digest   [sha256.Size]byte
	identity auth.Identity
}

// Authenticator validates bearer tokens against configured keys.
type Authenticator struct {
	entries []entry
}

// New hashes keys and returns an authenticator for them. Keys with an
// empty value are skipped.
func New(keys []Key) *Authenticator {
	a := &Authenticator{}
	for _, k := range keys {
		if k.Key == "" {
			continue
		}
		a.entries = append(a.entries, entry{digest: sha256.Sum256([]byte(k.Key)), identity: k.Identity})
	}
	return a
}

// Authenticate abstains without a Bearer header, votes Yes for a known
// key and No for any other token.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	digest := sha256.Sum256([]byte(token))
	match := -1
	for i := range a.entries {
		if subtle.ConstantTimeCompare(digest[:], a.entries[i].digest[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	id := a.entries[match].identity
	id.Scopes = append([]string(nil), id.Scopes...)
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}
