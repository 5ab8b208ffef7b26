package remote

import "context"

// SandboxAcquirer abstracts where a session's interpreter lives. A static
// URL shares one service between all sessions; the kubernetes package
// claims a dedicated sandbox pod per session.
type SandboxAcquirer interface {
	// Acquire returns the base URL of an interpreter service. The release
	// function must be called once the session is done with it.
	Acquire(ctx context.Context) (baseURL string, release func(), err error)
}

// StaticURL always returns the same interpreter service.
type StaticURL string

// Acquire implements SandboxAcquirer.
func (u StaticURL) Acquire(_ context.Context) (string, func(), error) {
	return string(u), func() {}, nil // Nothing to clean up.
}
