package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	exposeHeadersKey  = "Access-Control-Expose-Headers"
	defaultHSTSMaxAge = 180 * 24 * time.Hour
)

// SecurityOptions selects the optional headers SecurityHeaders emits.
type SecurityOptions struct {
	// EnableHSTS sends Strict-Transport-Security on HTTPS requests. Only
	// set it when the proxy-to-gateway hop is HTTPS too.
	EnableHSTS bool
	// HSTSMaxAge defaults to 180 days.
	HSTSMaxAge time.Duration
	// NoStore marks responses uncacheable. Cached entries hold relay
	// identifiers that must not linger in shared caches.
	NoStore bool
	// EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
	// ExposeHeaders are made readable to browser clients, e.g. the
	// download filename headers.
	ExposeHeaders []string
}

type headerPair struct{ name, value string }

// SecurityHeaders adds hardening headers suitable for a JSON and file
// streaming API. No CSP is sent: the gateway never serves HTML outside the
// Swagger UI.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	static := []headerPair{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if opt.EnablePolicy {
		static = append(static,
			headerPair{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
			headerPair{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}
	if opt.NoStore {
		static = append(static,
			headerPair{"Cache-Control", "no-store"},
			headerPair{"Pragma", "no-cache"},
			headerPair{"Expires", "0"},
		)
	}

	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, p := range static {
			h.Set(p.name, p.value)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}
		for _, name := range opt.ExposeHeaders {
			exposeHeader(h, name)
		}
		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers once,
// comparing case-insensitively.
func exposeHeader(h http.Header, name string) {
	cur := h.Get(exposeHeadersKey)
	if cur == "" {
		h.Set(exposeHeadersKey, name)
		return
	}
	for _, v := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(v), name) {
			return
		}
	}
	h.Set(exposeHeadersKey, cur+", "+name)
}

// isHTTPS honors X-Forwarded-Proto from the fronting proxy.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
