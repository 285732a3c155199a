package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Rate limiting for the cache API.
//
// Every identity (API client, or remote IP when auth is disabled) gets its
// own token bucket. A cache miss makes the gateway call three upstreams and
// upload a whole file to the relay, so the limiter is about protecting the
// origin as much as the gateway itself.
//
// Buckets live in process memory. Idle buckets are swept during lookups to
// keep the map bounded; with several replicas each one enforces its own
// limit.

var httpThrottled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter, by identity kind.",
	},
	[]string{"kind"},
)

func init() {
	prometheus.MustRegister(httpThrottled)
}

const (
	// sweepEvery is the number of lookups between idle-bucket sweeps.
	sweepEvery = 4096
	// defaultIdleTTL is how long an unused bucket is kept.
	defaultIdleTTL = 10 * time.Minute
)

// keyFunc maps a request to its bucket. Keys carry a "kind:" prefix
// ("client:", "ip:") that is also used as the metrics label.
type keyFunc func(*gin.Context) string

// KeyByClientOrIP keys requests by the client identity set by APIKeyAuth,
// falling back to the remote IP.
func KeyByClientOrIP() keyFunc {
	return func(c *gin.Context) string {
		if id := ClientFrom(c); id != "" {
			return "client:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim  *rate.Limiter
	used time.Time
}

// RateLimiter is a set of per-identity token buckets. Safe for concurrent
// use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn keyFunc

	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups int
}

// NewRateLimiter returns a limiter allowing rps requests per second with the
// given burst per identity. rps <= 0 disables limiting; burst is at least 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		idleTTL: defaultIdleTTL,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// limiterFor returns the bucket for key, creating it on first use. The sweep
// runs before the lookup so a stale bucket for key itself is replaced.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= sweepEvery {
		rl.lookups = 0
		for k, b := range rl.buckets {
			if now.Sub(b.used) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.used = now
	return b.lim
}

// Handler enforces the limit. A rejected request gets 429 with a Retry-After
// header (whole seconds until a token is available) and the JSON error
// envelope:
//
//	{"request_id": "...", "code": "rate_limited", "message": "rate limit exceeded"}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	if rl.limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		key := rl.keyFn(c)
		now := rl.now()
		res := rl.limiterFor(key).ReserveN(now, 1)
		delay := res.DelayFrom(now)
		if res.OK() && delay == 0 {
			c.Next()
			return
		}
		res.CancelAt(now)

		kind, _, _ := strings.Cut(key, ":")
		httpThrottled.WithLabelValues(kind).Inc()
		LoggerFrom(c).Warn().Str("limit_key", kind).Dur("retry_in", delay).Msg("rate limited")

		c.Header("Retry-After", retryAfter(delay))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}

// retryAfter renders d as whole seconds, at least 1.
func retryAfter(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
