package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Counter is a shared fixed-window counter, implemented by cache.Cache.
type Counter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type visitor struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter is a per-client token bucket. With a shared Counter the limit
// is enforced across API replicas and the local buckets are only used when
// the counter is unreachable.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      float64 // tokens per second
	burst     float64 // max tokens
	shared    Counter
	window    time.Duration
	limit     int
	lastSweep time.Time
	now       func() time.Time
	log       *logrus.Entry
}

// NewRateLimiter creates a limiter allowing rps sustained requests per
// client with bursts of up to burst. The shared counter enforces rps alone
// over a fixed window: one second, or 1/rps seconds when rps is below one.
func NewRateLimiter(rps float64, burst int, shared Counter, log *logrus.Entry) *RateLimiter {
	window, limit := time.Second, int(math.Ceil(rps))
	if rps > 0 && rps < 1 {
		window, limit = time.Duration(float64(time.Second)/rps), 1
	}
	if limit < 1 {
		limit = 1
	}
	return &RateLimiter{
		visitors:  make(map[string]*visitor),
		rate:      rps,
		burst:     float64(burst),
		shared:    shared,
		window:    window,
		limit:     limit,
		lastSweep: time.Now(),
		now:       time.Now,
		log:       log,
	}
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !rl.allow(r.Context(), key) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ctx context.Context, key string) bool {
	if rl.shared != nil {
		ok, err := rl.shared.Allow(ctx, key, rl.limit, rl.window)
		if err == nil {
			return ok
		}
		rl.log.WithError(err).Warn("shared rate limiter unavailable, using local buckets")
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > time.Minute {
		for ip, v := range rl.visitors {
			if now.Sub(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, ip)
			}
		}
		rl.lastSweep = now
	}

	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{tokens: rl.burst, lastSeen: now}
		rl.visitors[key] = v
	}

	v.tokens += now.Sub(v.lastSeen).Seconds() * rl.rate
	if v.tokens > rl.burst {
		v.tokens = rl.burst
	}
	v.lastSeen = now

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
