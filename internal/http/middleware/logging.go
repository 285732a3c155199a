// Request correlation, structured access logging with
// secret scrubbing, and a panic-safe recovery handler:
//
//   - RequestID() ensures every request carries a stable correlation ID
//     (propagated via X-Request-ID and stored in the Gin context).
//   - Logger() attaches a request-scoped zerolog.Logger (carrying the request
//     id and, on cache routes, the object key) and emits one access log line
//     per request with status, latency and sizes. Credentials never reach the
//     log: sensitive headers are masked and secret-looking query parameters
//     are replaced.
//   - Recovery() converts panics into JSON 500 responses while preserving the
//     correlation ID and emitting a stack trace to logs.
//   - LoggerFrom() retrieves the request-scoped logger for handlers.
//
// Recommended order: RequestID(), Logger(), Recovery().

package middleware

import (
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// loggerKey is the Gin context key of the request-scoped logger.
	loggerKey = "logger"
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048

	redacted = "[REDACTED]"
)

// LogOptions configures Logger.
type LogOptions struct {
	// MaskHeaders lists extra headers whose values are replaced in logs.
	// Authorization, Cookie and Set-Cookie are always masked.
	MaskHeaders []string
	// MaskParams lists extra query parameters whose values are replaced.
	// api_key, apikey, key, token and password are always masked.
	MaskParams []string
	// LogHeaders includes the (scrubbed) request headers in the access log.
	LogHeaders bool
	// SkipPaths are route paths that produce no access log line (e.g. /metrics).
	SkipPaths []string
}

// RequestID attaches (or propagates) a correlation identifier per request.
//
// If the incoming request has X-Request-ID that value is reused; otherwise a
// new UUIDv4 is generated. The ID is written back to the response header and
// stored in the Gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes a structured access log for each request.
//
// Level follows the outcome: error for 5xx or when the Gin context carries
// errors, warn for 4xx, info otherwise. Place it after RequestID().
func Logger(opts LogOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskParams := lowerSet([]string{"api_key", "apikey", "key", "token", "password"}, opts.MaskParams)
	skip := lowerSet(nil, opts.SkipPaths)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		rid, _ := c.Get(requestIDKey)
		lc := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path)
		if id := c.Param("object_id"); id != "" {
			lc = lc.Str("object_id", id)
		}
		if typ := c.Param("object_type"); typ != "" {
			lc = lc.Str("object_type", typ)
		}
		l := lc.Logger()
		c.Set(loggerKey, &l)

		c.Next()

		if _, ok := skip[strings.ToLower(path)]; ok {
			return
		}

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = l.Error().Str("errors", c.Errors.String())
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		default:
			ev = l.Info()
		}

		ev = ev.
			Str("query", truncate(scrubQuery(c.Request.URL.RawQuery, maskParams), maxQueryLogLength)).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int64("bytes_in", c.Request.ContentLength).
			Int("status", status).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start))
		if opts.LogHeaders {
			ev = ev.Interface("headers", scrubHeaders(c.Request.Header, maskHeaders))
		}
		ev.Msg("request")
	}
}

// Recovery intercepts panics, logs a stack trace, and returns a JSON 500
// error if nothing has been written yet.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				LoggerFrom(c).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", asString(rid)).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header("Content-Type", "application/json")
					c.Header(requestIDHeader, asString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": asString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger, or the global logger
// when Logger() is not installed.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// scrubQuery replaces the values of sensitive parameters. An unparsable
// query is dropped entirely.
func scrubQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	q, err := url.ParseQuery(raw)
	if err != nil {
		return redacted
	}
	for k := range q {
		if _, ok := mask[strings.ToLower(k)]; ok {
			q[k] = []string{redacted}
		}
	}
	return q.Encode()
}

func scrubHeaders(h http.Header, mask map[string]struct{}) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := mask[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = strings.Join(vv, ", ")
	}
	return out
}

func lowerSet(base, extra []string) map[string]struct{} {
	m := make(map[string]struct{}, len(base)+len(extra))
	for _, s := range append(base, extra...) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			m[s] = struct{}{}
		}
	}
	return m
}

// asString converts an arbitrary interface to a string, returning an empty
// string when the value is not a string. Used for context values.
func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate returns s unchanged when within max length, otherwise it truncates
// s to max bytes and appends an ellipsis. A max <= 0 disables truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
