// Package conversation provides per-tab conversation controllers on top of
// the agent session layer.
//
// ratelimit.go - Per-tab send rate limiting
//
// This file contains:
// - RateLimiter, a keyed token-bucket limiter for prompt submissions
//
// Each tab gets its own bucket so one chatty tab cannot starve the others.

package conversation

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter provides per-tab rate limiting
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit // sends per second
	burst    int        // max burst size
}

// NewRateLimiter creates a new rate limiter
// requestsPerSecond: sends per second allowed per tab
// burst: maximum burst size (sends allowed at once)
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// DefaultRateLimiter returns a rate limiter with sensible defaults
// 1 send/second with burst of 5
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(1, 5)
}

// getLimiter returns the rate limiter for a given tab id
func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[key]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = r.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(r.rate, r.burst)
	r.limiters[key] = limiter
	return limiter
}

// Allow checks if a send should be allowed for the given tab id
func (r *RateLimiter) Allow(key string) bool {
	return r.getLimiter(key).Allow()
}

// Forget drops the bucket for a closed tab
func (r *RateLimiter) Forget(key string) {
	r.mu.Lock()
	delete(r.limiters, key)
	r.mu.Unlock()
}

// Reset clears all buckets. Call this periodically to prevent memory
// growth from long-gone tabs.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters = make(map[string]*rate.Limiter)
}
