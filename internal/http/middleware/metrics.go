// Package middleware holds the Gin middleware shared by the gateway routes.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTP collectors. The path label is the registered route (c.FullPath()),
// never the raw URL, since URLs carry object ids.
var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "http_request_duration_seconds",
		Help: "HTTP request latency. Cache misses include the upstream round trips.",
		// Misses fetch three upstreams and re-upload a file; give the tail room.
		Buckets: []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_inflight",
		Help: "HTTP requests currently being served.",
	})

	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_size_bytes",
		Help:    "HTTP response body size.",
		Buckets: prometheus.ExponentialBuckets(256, 4, 12), // 256B..1GiB
	}, []string{"method", "path"})

	httpStreamed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_streamed_bytes_total",
		Help: "Body bytes sent by file download responses.",
	}, []string{"path"})
)

const (
	// unmatchedPath labels requests that hit no route.
	unmatchedPath = "unmatched"
	streamingKey  = "streaming"
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, httpStreamed)
}

// MarkStreaming flags the response as a file download; its bytes are also
// added to http_streamed_bytes_total.
func MarkStreaming(c *gin.Context) { c.Set(streamingKey, true) }

// Metrics records request count, latency, in-flight requests and response
// size. Serve the collectors with promhttp on /metrics.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInflight.Inc()
		start := time.Now()
		defer func() {
			httpInflight.Dec()
			observe(c, time.Since(start))
		}()
		c.Next()
	}
}

func observe(c *gin.Context, took time.Duration) {
	path := c.FullPath()
	if path == "" {
		path = unmatchedPath
	}
	method := c.Request.Method

	httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
	httpLat.WithLabelValues(method, path).Observe(took.Seconds())

	size := c.Writer.Size() // -1 until a body byte is written
	if size < 0 {
		return
	}
	httpRespSize.WithLabelValues(method, path).Observe(float64(size))
	if c.GetBool(streamingKey) {
		httpStreamed.WithLabelValues(path).Add(float64(size))
	}
}
