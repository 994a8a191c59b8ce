// Package ratelimiter throttles how fast the server admits new connections.
//
// The accept loop runs on the reactor goroutine and must never block, so the
// limiter is only ever consulted with Allow: when no token is available the
// freshly accepted socket is refused instead of waiting for the bucket to
// refill.
package ratelimiter

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// unlimited is the rate used when the configured rate is 0.
const unlimited = 1_000_000_000

// RateLimiter is a token bucket shared by every accept on one listener.
//
// It wraps golang.org/x/time/rate: tokens refill at a steady per-second rate
// and the bucket holds at most burst tokens, so a quiet server can absorb a
// connection storm up to burst before it starts refusing.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter   *rate.Limiter
	unlimited atomic.Bool
}

// New creates a RateLimiter admitting perSecond connections per second with
// the given burst.
//
// Special cases:
//   - perSecond = 0: no limit, Allow always succeeds
//   - burst = 0: burst defaults to perSecond
func New(perSecond, burst uint) *RateLimiter {
	if perSecond == 0 {
		r := &RateLimiter{limiter: rate.NewLimiter(rate.Limit(unlimited), unlimited)}
		r.unlimited.Store(true)
		return r
	}
	if burst == 0 {
		burst = perSecond
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst)),
	}
}

// Allow consumes one token if available and reports whether the connection
// may be admitted. It never blocks.
func (r *RateLimiter) Allow() bool {
	if r.unlimited.Load() {
		return true
	}
	return r.limiter.Allow()
}

// AllowAt is Allow evaluated at an explicit instant. Intended for tests.
func (r *RateLimiter) AllowAt(now time.Time) bool {
	if r.unlimited.Load() {
		return true
	}
	return r.limiter.AllowN(now, 1)
}

// Unlimited reports whether the limiter was created without a rate.
func (r *RateLimiter) Unlimited() bool {
	return r.unlimited.Load()
}

// SetLimit changes the sustained rate. 0 removes the limit.
func (r *RateLimiter) SetLimit(perSecond uint) {
	if perSecond == 0 {
		r.unlimited.Store(true)
		r.limiter.SetLimit(rate.Limit(unlimited))
		return
	}
	r.unlimited.Store(false)
	r.limiter.SetLimit(rate.Limit(perSecond))
}

// SetBurst changes the bucket capacity.
func (r *RateLimiter) SetBurst(burst uint) {
	r.limiter.SetBurst(int(burst))
}

// Tokens returns the tokens currently in the bucket. Useful for metrics.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
