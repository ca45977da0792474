// Package ratelimiter throttles requests with a token bucket.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter admits requests at a sustained rate with bursts on top.
// A zero rate admits everything. Safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter for requestsPerSecond with room for burst
// requests at once. A burst below one request is raised to one.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether a request may run now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a request may run or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Unlimited reports whether the limiter admits everything.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}
