package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestKeyByClientOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if got := KeyByClientOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("ip fallback key = %q", got)
	}

	c.Set(clientKey, "abc123")
	if got := KeyByClientOrIP()(c); got != "client:abc123" {
		t.Fatalf("client key = %q", got)
	}
}

func TestNewRateLimiter_BurstAtLeastOne(t *testing.T) {
	if rl := NewRateLimiter(2, 0, KeyByClientOrIP()); rl.burst != 1 {
		t.Fatalf("burst = %d, want 1", rl.burst)
	}
}

func TestRateLimiter_limiterFor_ReusesAndSweeps(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 1, KeyByClientOrIP())
	rl.now = func() time.Time { return now }

	first := rl.limiterFor("client:a")
	if rl.limiterFor("client:a") != first {
		t.Fatal("bucket should be reused for the same key")
	}

	// Idle past the TTL, then force a sweep on the next lookup.
	now = now.Add(defaultIdleTTL + time.Second)
	rl.mu.Lock()
	rl.lookups = sweepEvery - 1
	rl.mu.Unlock()

	_ = rl.limiterFor("client:b")

	rl.mu.Lock()
	_, hasA := rl.buckets["client:a"]
	_, hasB := rl.buckets["client:b"]
	rl.mu.Unlock()
	if hasA || !hasB {
		t.Fatalf("after sweep: a=%v b=%v, want a evicted and b present", hasA, hasB)
	}
}

func limitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Header(requestIDHeader, "rid-1")
		if id := c.GetHeader("X-Test-Client"); id != "" {
			c.Set(clientKey, id)
		}
		c.Next()
	})
	r.Use(rl.Handler())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func hit(r http.Handler, client string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	if client != "" {
		req.Header.Set("X-Test-Client", client)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_Handler_AllowDenyPerClient(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(0.5, 1, KeyByClientOrIP()) // one token every 2s
	rl.now = func() time.Time { return now }
	r := limitedRouter(rl)

	before := testutil.ToFloat64(httpThrottled.WithLabelValues("ip"))

	if w := hit(r, ""); w.Code != http.StatusOK {
		t.Fatalf("first request = %d", w.Code)
	}

	w := hit(r, "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After = %q, want 2", got)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["code"] != "rate_limited" || body["request_id"] != "rid-1" {
		t.Fatalf("unexpected body %v", body)
	}
	if got := testutil.ToFloat64(httpThrottled.WithLabelValues("ip")) - before; got != 1 {
		t.Fatalf("throttled counter delta = %v, want 1", got)
	}

	// An authenticated client behind the same IP has its own bucket.
	if w := hit(r, "abc123"); w.Code != http.StatusOK {
		t.Fatalf("client request = %d", w.Code)
	}

	// A rejected request does not consume a token: after the refill interval
	// the IP bucket admits exactly one request again.
	now = now.Add(2 * time.Second)
	if w := hit(r, ""); w.Code != http.StatusOK {
		t.Fatalf("after refill = %d", w.Code)
	}
}

func TestRateLimiter_ZeroRateDisables(t *testing.T) {
	r := limitedRouter(NewRateLimiter(0, 1, KeyByClientOrIP()))
	for i := 0; i < 20; i++ {
		if w := hit(r, ""); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
}

func TestRetryAfter(t *testing.T) {
	for d, want := range map[time.Duration]string{
		0:                       "1",
		300 * time.Millisecond:  "1",
		time.Second:             "1",
		1500 * time.Millisecond: "2",
	} {
		if got := retryAfter(d); got != want {
			t.Fatalf("retryAfter(%v) = %q, want %q", d, got, want)
		}
	}
}
