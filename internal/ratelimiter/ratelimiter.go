package ratelimiter

import (
	"context"
	"runtime"

	"golang.org/x/time/rate"
)

// RateLimiter paces long-running batch loops using the token bucket
// algorithm from golang.org/x/time/rate.
//
// Batch callers (bulk and fast imports) take one token per item. Between
// items Pace also yields the processor, so interactive drive operations that
// queue up behind a batch get scheduled promptly even when the bucket is
// full.
//
// Thread safety:
// All methods are safe for concurrent use. One limiter may be shared by
// several concurrent jobs to cap their combined rate.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing itemsPerSecond sustained with the given
// burst capacity.
//
// Special cases:
//   - itemsPerSecond = 0: no limit; Pace only yields
//   - burst = 0 with a non-zero rate: burst defaults to 1
//
// Example:
//
//	// 20 items/s sustained, first 50 immediately
//	limiter := New(20, 50)
func New(itemsPerSecond, burst uint) *RateLimiter {
	if itemsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(itemsPerSecond), int(burst)),
	}
}

// Unlimited reports whether the limiter never blocks.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// Allow takes a token if one is available, without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or the context is cancelled.
//
// Returns the context error if ctx ends first, or an error if the wait would
// exceed the context deadline.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Pace is called between batch items: it takes a token, then yields so
// goroutines waiting on the drive get a turn.
func (r *RateLimiter) Pace(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	runtime.Gosched()
	return nil
}

// SetLimit changes the sustained rate. Zero removes the limit.
func (r *RateLimiter) SetLimit(itemsPerSecond uint) {
	if itemsPerSecond == 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	r.limiter.SetLimit(rate.Limit(itemsPerSecond))
	if r.limiter.Burst() == 0 {
		r.limiter.SetBurst(1)
	}
}

// Tokens returns the currently available tokens, for monitoring.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
