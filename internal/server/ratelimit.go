package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimit is the sustained number of API requests per second per caller.
	DefaultRateLimit = 2
	// DefaultRateBurst is the burst allowance per caller.
	DefaultRateBurst = 10

	limiterIdleTTL = 10 * time.Minute
)

// RateLimiter hands out a token bucket per caller. Callers are keyed by
// identity when one is present and by client IP otherwise, so one user
// cannot exhaust the reasoner budget of everyone else.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*limiterEntry
	limit      rate.Limit
	burst      int
	trustProxy bool
	now        func() time.Time
	lastPrune  time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter. perSecond <= 0 disables limiting.
func NewRateLimiter(perSecond float64, burst int, trustProxy bool) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters:   make(map[string]*limiterEntry),
		limit:      rate.Limit(perSecond),
		burst:      burst,
		trustProxy: trustProxy,
		now:        time.Now,
	}
}

// Allow reports whether the caller identified by key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}
	now := rl.now()

	rl.mu.Lock()
	if now.Sub(rl.lastPrune) > limiterIdleTTL {
		for k, e := range rl.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(rl.limiters, k)
			}
		}
		rl.lastPrune = now
	}
	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	rl.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// size is the number of tracked callers.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) key(r *http.Request) string {
	if k := requestIdentity(r).Key(); k != "" {
		return k
	}
	return "ip:" + getClientIP(r, rl.trustProxy)
}

// Middleware applies rate limiting to next. A nil limiter passes through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(rl.key(r)) {
			retry := 1
			if rl.limit > 0 && rl.limit < 1 {
				retry = int(1/float64(rl.limit)) + 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "rate limit exceeded, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}
