package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// visitor is a token bucket for one source.
type visitor struct {
	tokens float64
	seen   time.Time
}

// RateLimiter throttles the public webhook per source IP so a single
// misbehaving chat widget cannot starve the model or booking providers
// for everyone else.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	refill float64 // tokens per second
	burst  float64

	now func() time.Time
}

// NewRateLimiter allows refill requests/sec with the given burst per source.
func NewRateLimiter(refill float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		refill:   refill,
		burst:    float64(burst),
		now:      time.Now,
	}
	go rl.evictLoop()
	return rl
}

// Allow reports whether a request from source is within the limit and, when
// it is not, how long until a token frees up.
func (rl *RateLimiter) Allow(source string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[source]
	if !ok {
		v = &visitor{tokens: rl.burst, seen: now}
		rl.visitors[source] = v
	} else {
		v.tokens += now.Sub(v.seen).Seconds() * rl.refill
		if v.tokens > rl.burst {
			v.tokens = rl.burst
		}
		v.seen = now
	}

	if v.tokens < 1 {
		wait := time.Duration((1 - v.tokens) / rl.refill * float64(time.Second))
		return false, wait
	}
	v.tokens--
	return true, 0
}

// evictLoop drops sources idle for 10 minutes so the map stays bounded.
func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		cutoff := rl.now().Add(-10 * time.Minute)
		for source, v := range rl.visitors {
			if v.seen.Before(cutoff) {
				delete(rl.visitors, source)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimit rejects requests over the configured per-IP rate with a 429 and
// a Retry-After hint.
func RateLimit(refill float64, burst int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(refill, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			source := r.RemoteAddr
			// chi's RealIP middleware rewrites RemoteAddr behind proxies,
			// but honor the header directly when present.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				source = xri
			}
			ok, wait := limiter.Allow(source)
			if !ok {
				secs := int(wait.Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
