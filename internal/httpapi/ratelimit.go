package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vitalbridge/whoopsync/internal/auth"
)

// RateLimitInfo configures the inbound per-user limiter. The point is to
// keep one misbehaving client from burning the shared upstream quota.
type RateLimitInfo struct {
	WindowSeconds int
	MaxRequests   int
	Burst         int
}

// tokenBucket is a mutex-guarded token bucket. Tokens refill continuously
// at MaxRequests/WindowSeconds per second, capped at Burst.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64
	lastRefill time.Time
}

func newTokenBucket(capacity int, refillRate float64) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(capacity),
		capacity:   float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// allow consumes one token if available. Returns the remaining count, when
// the next token arrives (for Retry-After) and when the bucket is full again
// (for X-RateLimit-Reset).
func (tb *tokenBucket) allow() (bool, int, time.Time, time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	fullReset := now.Add(time.Duration((tb.capacity - tb.tokens) / tb.refillRate * float64(time.Second)))

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true, int(tb.tokens), now, fullReset
	}

	next := now.Add(time.Duration((1.0 - tb.tokens) / tb.refillRate * float64(time.Second)))
	return false, 0, next, fullReset
}

// rateLimiter holds one bucket per user. Idle buckets are reaped so the map
// does not grow with user count.
type rateLimiter struct {
	mu      sync.RWMutex
	buckets map[uuid.UUID]*tokenBucket
	config  RateLimitInfo
}

func newRateLimiter(config RateLimitInfo) *rateLimiter {
	rl := &rateLimiter{
		buckets: make(map[uuid.UUID]*tokenBucket),
		config:  config,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *rateLimiter) bucket(userID uuid.UUID) *tokenBucket {
	rl.mu.RLock()
	b, ok := rl.buckets[userID]
	rl.mu.RUnlock()
	if ok {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok := rl.buckets[userID]; ok {
		return b
	}
	b = newTokenBucket(rl.config.Burst, float64(rl.config.MaxRequests)/float64(rl.config.WindowSeconds))
	rl.buckets[userID] = b
	return b
}

func (rl *rateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		for userID, b := range rl.buckets {
			b.mu.Lock()
			if time.Since(b.lastRefill) > time.Hour {
				delete(rl.buckets, userID)
			}
			b.mu.Unlock()
		}
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware enforces the per-user limit and sets the usual
// X-RateLimit headers. Must run after the auth middleware.
func RateLimitMiddleware(config RateLimitInfo) func(http.Handler) http.Handler {
	limiter := newRateLimiter(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.UserID(r.Context())
			if userID == uuid.Nil {
				next.ServeHTTP(w, r)
				return
			}

			allowed, remaining, nextToken, fullReset := limiter.bucket(userID).allow()

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(fullReset.Unix(), 10))

			if !allowed {
				retryAfter := int(time.Until(nextToken).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				log.Ctx(r.Context()).Warn().
					Str("userId", userID.String()).
					Str("path", r.URL.Path).
					Int("retryAfter", retryAfter).
					Msg("rate limit exceeded")

				writeError(w, r, http.StatusTooManyRequests, "rate_limited",
					"rate limit exceeded, retry after "+strconv.Itoa(retryAfter)+" seconds")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
