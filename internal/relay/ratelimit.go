package relay

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBurst     = 5
	staleAfter       = 10 * time.Minute
	sweepEvery       = 5 * time.Minute
	secondsPerMinute = 60.0
)

// RateLimiter enforces a per-client token bucket. A limiter built with
// rpm <= 0 allows everything.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing rpm requests per minute per key.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = defaultBurst
	}

	limit := rate.Limit(0)
	if rpm > 0 {
		limit = rate.Limit(float64(rpm) / secondsPerMinute)
	}

	return &RateLimiter{
		limiters:  make(map[string]*limiterEntry),
		limit:     limit,
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// Enabled reports whether requests are being limited at all.
func (rl *RateLimiter) Enabled() bool {
	return rl.limit > 0
}

// Allow reports whether a request from key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	if !rl.Enabled() {
		return true
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= sweepEvery {
		rl.sweep(now)
	}

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = entry
	}

	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

// sweep drops entries idle for longer than staleAfter. Callers hold mu.
func (rl *RateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-staleAfter)

	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}

	rl.lastSweep = now
}
