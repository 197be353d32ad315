package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// perIPLimiter pairs a token-bucket limiter with the time it was last used,
// so idle entries can be evicted.
type perIPLimiter struct {
	limiter *rate.Limiter
	lastHit time.Time
}

// rateLimiterSet enforces requestsPerWindow per source address, per §4.9
// ("rate limit 120 requests per 60 s per source address"). Idle limiters
// are evicted after 10 minutes so the map does not grow unbounded under a
// churning client population.
type rateLimiterSet struct {
	mu         sync.Mutex
	limiters   map[string]*perIPLimiter
	limit      rate.Limit
	burst      int
	idleEvict  time.Duration
}

func newRateLimiterSet(requestsPerWindow int, window time.Duration) *rateLimiterSet {
	if requestsPerWindow <= 0 {
		requestsPerWindow = 120
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &rateLimiterSet{
		limiters:  make(map[string]*perIPLimiter),
		limit:     rate.Limit(float64(requestsPerWindow) / window.Seconds()),
		burst:     requestsPerWindow,
		idleEvict: 10 * time.Minute,
	}
}

func (rl *rateLimiterSet) allow(ip string) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &perIPLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastHit = time.Now()
	limiter := entry.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

func (rl *rateLimiterSet) sweepIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-rl.idleEvict)
	for ip, e := range rl.limiters {
		if e.lastHit.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}
