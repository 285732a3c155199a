// Package httpapi wires the HTTP transport (Gin) to the cache services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, access logging, panic recovery, metrics,
// API-key auth, CORS, security headers, compression and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Downloads are streamed untouched (never buffered or compressed)
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/files-cache-gateway/docs"
	"github.com/tbourn/files-cache-gateway/internal/config"
	"github.com/tbourn/files-cache-gateway/internal/http/handlers"
	"github.com/tbourn/files-cache-gateway/internal/http/middleware"
)

// Deps are the application services the routes are bound to.
type Deps struct {
	Cache    handlers.CacheService
	Backfill handlers.Backfill
	// Store is probed by the health endpoints; nil reports plain liveness.
	Store handlers.StoreProbe
}

// Probe and scrape endpoints are not access-logged.
var quietPaths = []string{"/health", "/healthcheck", "/metrics"}

// exposedHeaders are readable by browser clients of the download endpoint.
var exposedHeaders = []string{
	"X-Request-ID",
	"Content-Length",
	"Content-Disposition",
	handlers.HeaderFilenameB64,
	handlers.HeaderCaptionB64,
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. Background work started by requests (backfill runs) is bound to
// ctx, so canceling it on shutdown stops that work.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and Security headers
//  8. gzip for JSON responses (downloads excluded)
//
// The API group then adds API-key auth followed by the rate limiter, so
// buckets are keyed by the authenticated client. Probes are never limited.
func RegisterRoutes(ctx context.Context, r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging; the API key never reaches the log
	r.Use(middleware.Logger(middleware.LogOptions{
		MaskHeaders: []string{"X-API-Key"},
		SkipPaths:   quietPaths,
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB); only upserts carry a body
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    exposedHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		corsCfg.AllowAllOrigins = true // AllowCredentials must remain false
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       true,
		EnablePolicy:  true,
		ExposeHeaders: exposedHeaders,
	}))

	// 8) Compress JSON; payloads are already-compressed formats and are streamed
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPathsRegexs([]string{`/download/`}),
		gzip.WithExcludedPaths([]string{"/metrics"}),
	))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	health := handlers.Health(deps.Store)
	r.GET("/health", health)
	r.GET("/healthcheck", health)

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps.Cache, deps.Backfill, ctx)

	// Cache API: auth, then a token bucket per client
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientOrIP())
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.APIKeyAuth(cfg.APIKey), rl.Handler())
	{
		// Existing clients call the object routes with a trailing slash;
		// serve both forms instead of redirecting.
		for _, slash := range []string{"", "/"} {
			api.GET("/download/:object_id/:object_type"+slash, h.DownloadCachedFile)
			api.GET("/:object_id/:object_type"+slash, h.GetCachedFile)
			api.DELETE("/:object_id/:object_type"+slash, h.DeleteCachedFile)
		}
		api.POST("/", h.UpsertCachedFile)
		api.POST("/update_cache", h.UpdateCache)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
