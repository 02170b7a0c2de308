package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a per-client token bucket. Buckets refill continuously at
// the configured rate and are pruned once they have been idle long enough to
// be full again.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	perSecond float64
	burst     float64
	lastPrune time.Time
	now       func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewRateLimiter allows perMinute requests per client with bursts up to
// burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return &RateLimiter{
		buckets:   make(map[string]*bucket),
		perSecond: float64(perMinute) / 60,
		burst:     float64(burst),
		now:       time.Now,
	}
}

// Handler rejects clients that exhausted their bucket with 429.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"Too many requests.","action":"Slow down and retry shortly.","code":"rate_limited"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.burst, last: now}
		rl.buckets[key] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * rl.perSecond
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.last = now

	rl.maybePrune(now)

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// maybePrune drops buckets idle long enough to have refilled completely.
// Runs at most once a minute, under the lock already held by allow.
func (rl *RateLimiter) maybePrune(now time.Time) {
	if now.Sub(rl.lastPrune) < time.Minute {
		return
	}
	rl.lastPrune = now

	idle := time.Duration(rl.burst/rl.perSecond) * time.Second
	for key, b := range rl.buckets {
		if now.Sub(b.last) > idle {
			delete(rl.buckets, key)
		}
	}
}

// clientKey prefers the host part of RemoteAddr; chi's RealIP middleware has
// already rewritten it from X-Forwarded-For when present.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
