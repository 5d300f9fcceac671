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

// Token-bucket limiting per caller, process-local. Reads cost one token;
// writes (posting, liking, following, messaging) cost WriteCost tokens so a
// client spamming likes runs dry before one that is only scrolling the feed.
// Idempotent replays flagged by IdempotencyValidator are free.

// CodeRateLimited is the error code in the 429 envelope.
const CodeRateLimited = "too_many_requests"

// KeyFunc maps a request to its bucket.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP buckets identified callers by user ID and anonymous ones by
// client IP. The prefixes keep the two namespaces apart.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if id := UserID(c); id != "" {
			return "user:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per key. Safe for concurrent use.
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	writeCost  int
	keyFn      KeyFunc
	idleTTL    time.Duration
	sweepEvery uint64

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups uint64
	now     func() time.Time
}

// RateOption tweaks a RateLimiter.
type RateOption func(*RateLimiter)

// WithWriteCost sets the token cost of unsafe methods. It is clamped to
// [1, burst] so a write is never impossible.
func WithWriteCost(n int) RateOption {
	return func(rl *RateLimiter) { rl.writeCost = n }
}

// WithIdleTTL sets how long an untouched bucket survives a sweep.
func WithIdleTTL(d time.Duration) RateOption {
	return func(rl *RateLimiter) {
		if d > 0 {
			rl.idleTTL = d
		}
	}
}

// NewRateLimiter builds a limiter refilling rps tokens per second into
// buckets of size burst (at least 1).
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc, opts ...RateOption) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	rl := &RateLimiter{
		limit:      rate.Limit(rps),
		burst:      burst,
		writeCost:  1,
		keyFn:      keyFn,
		idleTTL:    10 * time.Minute,
		sweepEvery: 4096,
		buckets:    make(map[string]*bucket),
		now:        time.Now,
	}
	for _, o := range opts {
		o(rl)
	}
	rl.writeCost = min(max(rl.writeCost, 1), rl.burst)
	return rl
}

// limiterFor returns the bucket for key. Every sweepEvery lookups idle
// buckets are dropped first, so a stale bucket is evicted even when it is
// the one being asked for.
func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= rl.sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// cost is the number of tokens a request consumes.
func (rl *RateLimiter) cost(method string) int {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return 1
	}
	return rl.writeCost
}

// IsRateBypass reports whether IdempotencyValidator marked the request as a
// replay.
func IsRateBypass(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyRateBypass)
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit. A denied request gets 429 with Retry-After set
// to the whole seconds until enough tokens are back, and the standard error
// envelope.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		lim := rl.limiterFor(rl.keyFn(c), now)
		res := lim.ReserveN(now, rl.cost(c.Request.Method))
		delay := time.Second
		if res.OK() {
			delay = res.DelayFrom(now)
			if delay == 0 {
				c.Next()
				return
			}
			res.CancelAt(now)
		}

		c.Header("Retry-After", retryAfter(delay))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       CodeRateLimited,
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter renders d as whole seconds, rounding up, never below 1.
func retryAfter(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
