package httpx

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// KeyFunc derives the bucket a request is counted against.
type KeyFunc func(*http.Request) string

// RateLimiter is a fixed-window limiter held in process memory. It suits a
// single replica; use RedisRateLimiter when replicas must share counts.
type RateLimiter struct {
	limit  int
	window time.Duration
	key    KeyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	sweepAt time.Time
}

type bucket struct {
	hits    int
	resetAt time.Time
}

// NewRateLimiter counts by client address when key is nil.
func NewRateLimiter(limit int, window time.Duration, key KeyFunc) *RateLimiter {
	if key == nil {
		key = ClientKey
	}
	return &RateLimiter{limit: limit, window: window, key: key, buckets: make(map[string]*bucket)}
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(rl.key(r), time.Now()) {
				rejectLimited(w, rl.window)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.sweepAt) {
		for k, b := range rl.buckets {
			if now.After(b.resetAt) {
				delete(rl.buckets, k)
			}
		}
		rl.sweepAt = now.Add(rl.window)
	}

	b, ok := rl.buckets[key]
	switch {
	case !ok || now.After(b.resetAt):
		rl.buckets[key] = &bucket{hits: 1, resetAt: now.Add(rl.window)}
		return true
	case b.hits >= rl.limit:
		return false
	default:
		b.hits++
		return true
	}
}

func rejectLimited(w http.ResponseWriter, window time.Duration) {
	secs := int(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
}

// ClientKey returns the first X-Forwarded-For hop, or the remote host.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
