// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the edge throttle: an in-memory token-bucket limiter
// with per-identity buckets and opportunistic garbage collection. One limiter
// guards the whole API; the analyze endpoints get their own per-minute
// limiters on top, keyed by the same identity.
//
// Features:
//   - Per-key token buckets using golang.org/x/time/rate
//   - Keys come from the resolved identity ("user:<id>" or "anon:<hash>"),
//     so raw client addresses never become map keys
//   - Best-effort cleanup of idle buckets to bound memory
//   - Seamless bypass for idempotent replays (when paired with IdempotencyValidator)
//
// Notes:
//   - This limiter is process-local. The daily quota lives in the usage
//     ledger; this throttle only smooths bursts.
//   - The limiter is intended for edge-level abuse control and cost protection;
//     it is not an authorization mechanism.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByIdentity keys buckets by the identity resolved by Authenticate.
func KeyByIdentity() keyFunc {
	return func(c *gin.Context) string {
		return IdentityFrom(c).Key
	}
}

// visitor holds a single rate limiter and the last time it was seen.
// Used to opportunistically evict idle buckets.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements a per-key token-bucket rate limiter.
//
// Buckets are created on demand and stored in an internal map guarded by a
// mutex. Idle buckets are evicted after a TTL via opportunistic cleanup during
// lookups to keep memory usage bounded.
//
// This type is safe for concurrent use.
type RateLimiter struct {
	name     string
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter constructs a RateLimiter with the given tokens-per-second
// and burst size, keyed by keyFn.
//
//   - rps:   tokens replenished per second (0 allows no requests; use >0).
//   - burst: maximum burst size; values <= 0 are coerced to 1.
//   - keyFn: function that maps a request to a bucket identity.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		name:     "global",
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute, // evict idle entries after TTL
	}
}

// NewPerMinuteLimiter allows perMinute requests per key per minute, all of
// which may be spent at once. name labels the throttle metric.
func NewPerMinuteLimiter(name string, perMinute int, keyFn keyFunc) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	rl := NewRateLimiter(float64(perMinute)/60, perMinute, keyFn)
	rl.name = name
	return rl
}

// getVisitor returns (and updates) the limiter for key, creating it if absent.
// It also performs opportunistic GC of idle entries after ~5000 lookups.
//
// GC runs before the requested visitor is touched so a stale bucket can be
// evicted even when it is the one being fetched.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request for
// rate-limit bypass (i.e., it is a replay of a previously completed request).
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass) // set by IdempotencyValidator
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns a Gin middleware that enforces per-key token-bucket limits.
//
// Behavior:
//   - If IsRateBypass(c) is true (idempotent replay), limiting is skipped.
//   - Otherwise, the request is checked against the key's limiter. If allowed,
//     the request proceeds; if not, a 429 response is returned with the
//     standard error envelope and a Retry-After header of the seconds until
//     the next token.
//
// The middleware emits:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 6
//	{
//	  "request_id": "<uuid>",
//	  "code":       "rate_limited",
//	  "message":    "rate limit exceeded"
//	}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		lim := rl.getVisitor(rl.keyFn(c))
		if lim.Allow() {
			c.Next()
			return
		}

		httpThrottled.WithLabelValues(rl.name).Inc()
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(lim)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfterSeconds is the wait until lim grants a token, at least 1s.
func retryAfterSeconds(lim *rate.Limiter) int {
	r := lim.Reserve()
	defer r.Cancel()
	if !r.OK() {
		return 60
	}
	return max(int(math.Ceil(r.Delay().Seconds())), 1)
}
