// Package middleware holds cross-cutting request guards for the services.
package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-key request rate. Entries expire after a period
// of inactivity so the map stays bounded by the active key set.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	lastScan time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing limit events per second with the
// given burst per key. Keys idle longer than ttl are evicted.
func NewRateLimiter(limit rate.Limit, burst int, ttl time.Duration) *RateLimiter {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RateLimiter{
		limiters: map[string]*entry{},
		limit:    limit,
		burst:    burst,
		ttl:      ttl,
		lastScan: time.Now(),
	}
}

// Allow reports whether the key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.maybePrune(now)

	e, ok := rl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

// Len reports the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// maybePrune drops idle entries. Scans at most once per ttl so Allow stays
// cheap on the hot path. Caller holds mu.
func (rl *RateLimiter) maybePrune(now time.Time) {
	if now.Sub(rl.lastScan) < rl.ttl {
		return
	}
	rl.lastScan = now
	for key, e := range rl.limiters {
		if now.Sub(e.lastSeen) > rl.ttl {
			delete(rl.limiters, key)
		}
	}
}
