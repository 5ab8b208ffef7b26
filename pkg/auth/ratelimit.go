package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether an identity may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig is the limit of one service tier.
type TierConfig struct {
	RequestsPerMinute int
}

// InProcessLimiter counts requests per subject and tier in fixed one-minute
// windows held in memory.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int
	now        func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// NewInProcessLimiter creates a limiter. Tiers without an entry use
// defaultRPM; a non-positive limit means unlimited.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		now:        time.Now,
		windows:    make(map[string]*window),
	}
}

// Allow implements RateLimiter.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.ServiceTier
	if tier == "" {
		tier = "default"
	}
	limit := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		limit = tc.RequestsPerMinute
	}
	if limit <= 0 {
		return nil
	}

	key := tier + "/" + identity.Subject
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		if len(l.windows) > 1024 {
			l.sweep(now)
		}
		l.windows[key] = &window{start: now, count: 1}
		return nil
	}
	if w.count >= limit {
		return ErrTooManyRequests
	}
	w.count++
	return nil
}

// sweep drops expired windows. Called with mu held.
func (l *InProcessLimiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= time.Minute {
			delete(l.windows, k)
		}
	}
}
