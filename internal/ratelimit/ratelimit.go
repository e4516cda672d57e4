// Package ratelimit bounds the number of requests a single client may issue
// to the API surface within a rolling window.
//
// This is a fixed-window counter, not a sliding log or token bucket: a burst
// straddling a window boundary can reach twice the limit. That is accepted
// for O(1) memory and O(1) per-request cost.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AnonymousKey is the shared counter key for clients whose address cannot be
// resolved. All such clients throttle together.
const AnonymousKey = "anonymous"

// Store holds per-client counters. Implementations must be safe for
// concurrent use; increment-and-report is a single critical section so
// concurrent requests cannot lose updates.
type Store interface {
	// Incr counts one request against clientKey's current window and returns
	// the count after the increment together with when the window resets.
	// An expired window is reset lazily to count 1.
	Incr(ctx context.Context, clientKey string, now time.Time, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Result contains the outcome of a rate limit check
type Result struct {
	Allowed    bool
	Remaining  int64
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// RetryAfterSeconds returns the retry hint rounded up to whole seconds, as
// carried by the Retry-After response header.
func (r Result) RetryAfterSeconds() int {
	secs := int(r.RetryAfter / time.Second)
	if r.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// Limiter checks requests against a fixed-window counter store.
type Limiter struct {
	store       Store
	window      time.Duration
	maxRequests int
	logger      zerolog.Logger
}

// NewLimiter creates a limiter over the given counter store
func NewLimiter(store Store, window time.Duration, maxRequests int) *Limiter {
	return &Limiter{
		store:       store,
		window:      window,
		maxRequests: maxRequests,
		logger:      log.With().Str("component", "ratelimit").Logger(),
	}
}

// Allow checks whether the request identified by clientKey is allowed at the
// given instant. Denied requests still consume a counted slot; the counter is
// not rolled back on rejection.
func (l *Limiter) Allow(ctx context.Context, clientKey string, now time.Time) Result {
	count, resetAt, err := l.store.Incr(ctx, clientKey, now, l.window)
	if err != nil {
		// Fail open: a broken counter store must not take the API down.
		l.logger.Error().Err(err).Str("client_key", clientKey).Msg("Rate limit store failed, allowing request")
		return Result{
			Allowed:   true,
			Remaining: int64(l.maxRequests),
			Limit:     l.maxRequests,
			ResetAt:   now.Add(l.window),
		}
	}

	result := Result{
		Limit:   l.maxRequests,
		ResetAt: resetAt,
	}

	if count > int64(l.maxRequests) {
		result.Allowed = false
		result.Remaining = 0
		result.RetryAfter = resetAt.Sub(now)
		if result.RetryAfter < 0 {
			result.RetryAfter = time.Second
		}
		return result
	}

	result.Allowed = true
	result.Remaining = int64(l.maxRequests) - count
	return result
}

// Window returns the configured window duration
func (l *Limiter) Window() time.Duration {
	return l.window
}

// MaxRequests returns the configured per-window limit
func (l *Limiter) MaxRequests() int {
	return l.maxRequests
}
