// Package ratelimit provides fixed-window admission control for the intake
// endpoint. The window store is injectable so the in-memory implementation can
// be swapped for Redis without touching callers.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rankandrent/exchange-intake/pkg/logging"
)

// unknownKey is the shared bucket for requests with no identifying signal.
// All such clients draw from one budget; see DESIGN.md for the trade-off.
const unknownKey = "unknown"

// Store tracks request counts per key over a fixed window.
type Store interface {
	// Incr increments the counter for key, starting a new window when none is
	// active, and returns the post-increment count and the window expiry.
	Incr(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
}

// Result is the outcome of an admission check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window resets, at least 1.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter enforces a fixed request budget per client key per window.
type Limiter struct {
	store  Store
	budget int
	window time.Duration
	logger *logging.Logger
}

// NewLimiter creates a limiter with the given budget and window.
func NewLimiter(store Store, budget int, window time.Duration, logger *logging.Logger) *Limiter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Limiter{
		store:  store,
		budget: budget,
		window: window,
		logger: logger,
	}
}

// Allow records one request for key and reports whether it is within budget.
// A store fault fails closed: the request is rejected with a full-window
// reset rather than letting an outage disable the limiter.
func (l *Limiter) Allow(ctx context.Context, key string) Result {
	if strings.TrimSpace(key) == "" {
		key = unknownKey
	}

	count, resetAt, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		l.logger.Error("rate limit store unavailable, failing closed", "error", err, "key", key)
		return Result{
			Allowed:   false,
			Limit:     l.budget,
			Remaining: 0,
			ResetAt:   time.Now().Add(l.window),
		}
	}

	remaining := l.budget - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= l.budget,
		Limit:     l.budget,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// ClientKey derives the rate-limit key for a request: the first hop of
// X-Forwarded-For, then X-Real-Ip, then the peer address. Requests with no
// identifying signal share the "unknown" bucket.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		return addr
	}
	return unknownKey
}
