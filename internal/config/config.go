// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage, upstream services, backfill
// pacing, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "files-cache-gateway")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// UpstreamConfig addresses one upstream HTTP service.
type UpstreamConfig struct {
	URL    string
	APIKey string
}

// Cache store backends.
const (
	StoreBackendSQL   = "sql"
	StoreBackendRedis = "redis"
)

// StoreConfig selects and addresses the cache store.
type StoreConfig struct {
	Backend     string // STORE_BACKEND: sql|redis
	DBDriver    string // DB_DRIVER: sqlite|postgres
	DBPath      string // DB_PATH (sqlite)
	DatabaseURL string // DATABASE_URL (postgres)
	RedisURL    string // REDIS_URL
}

// BackfillConfig paces the catalog reconcile job.
type BackfillConfig struct {
	Concurrency int     // BACKFILL_CONCURRENCY (1 = strictly sequential)
	RPS         float64 // BACKFILL_RPS, populates per second (0 = unlimited)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes
	APIKey         string // shared secret expected in Authorization; empty disables auth

	// Storage
	Store StoreConfig

	// Upstreams
	Library         UpstreamConfig
	Downloader      UpstreamConfig
	Files           UpstreamConfig
	UpstreamTimeout time.Duration // per-request header/JSON timeout

	// Backfill
	Backfill BackfillConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// Load reads the configuration from the environment, fills defaults,
// normalizes values and validates the result. Unparsable numbers, booleans
// and durations fall back to their defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:              env("PORT", "8080"),
		ReadTimeout:       envDuration("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: envDuration("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      envDuration("WRITE_TIMEOUT", 10*time.Minute), // covers streamed downloads
		IdleTimeout:       envDuration("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    envInt("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(env("GIN_MODE", "release")),

		LogLevel:       strings.ToLower(env("LOG_LEVEL", "info")),
		LogPretty:      envBool("LOG_PRETTY", false),
		SwaggerEnabled: envBool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(env("API_BASE_PATH", "/api/v1")),
		APIKey:         env("API_KEY", ""),

		Store: StoreConfig{
			Backend:     strings.ToLower(env("STORE_BACKEND", StoreBackendSQL)),
			DBDriver:    strings.ToLower(env("DB_DRIVER", "sqlite")),
			DBPath:      env("DB_PATH", "cache.db"),
			DatabaseURL: env("DATABASE_URL", ""),
			RedisURL:    env("REDIS_URL", "redis://localhost:6379/0"),
		},

		Library:         upstreamFromEnv("LIBRARY", "http://library:8080"),
		Downloader:      upstreamFromEnv("DOWNLOADER", "http://downloader:8080"),
		Files:           upstreamFromEnv("FILES", "http://files:8080"),
		UpstreamTimeout: envDuration("UPSTREAM_TIMEOUT", 5*time.Minute),

		Backfill: BackfillConfig{
			Concurrency: envInt("BACKFILL_CONCURRENCY", 1),
			RPS:         envFloat("BACKFILL_RPS", 0),
		},

		RateRPS:   envFloat("RATE_RPS", 5),
		RateBurst: envInt("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: envList("CORS_ALLOWED_ORIGINS")},
		Security: SecurityConfig{
			EnableHSTS: envBool("ENABLE_HSTS", false),
			HSTSMaxAge: envDuration("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			Endpoint:    env("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: env("OTEL_SERVICE_NAME", "files-cache-gateway"),
			SampleRatio: envFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	return cfg, cfg.Validate()
}

// upstreamFromEnv reads <PREFIX>_URL and <PREFIX>_API_KEY.
func upstreamFromEnv(prefix, defURL string) UpstreamConfig {
	return UpstreamConfig{
		URL:    env(prefix+"_URL", defURL),
		APIKey: env(prefix+"_API_KEY", ""),
	}
}

// Validate reports every invalid setting at once, joined.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	if err := c.Store.validate(); err != nil {
		errs = append(errs, err)
	}
	for _, u := range []struct {
		name string
		cfg  UpstreamConfig
	}{{"LIBRARY_URL", c.Library}, {"DOWNLOADER_URL", c.Downloader}, {"FILES_URL", c.Files}} {
		if err := validateURL(u.cfg.URL); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u.name, err))
		}
	}
	check(c.UpstreamTimeout > 0, "UPSTREAM_TIMEOUT must be > 0")

	check(c.Backfill.Concurrency >= 1, "BACKFILL_CONCURRENCY must be >= 1")
	check(c.Backfill.RPS >= 0, "BACKFILL_RPS must be >= 0")
	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

func (s StoreConfig) validate() error {
	switch s.Backend {
	case StoreBackendSQL:
		switch s.DBDriver {
		case "sqlite":
			if strings.TrimSpace(s.DBPath) == "" {
				return errors.New("DB_PATH must not be empty")
			}
		case "postgres":
			if strings.TrimSpace(s.DatabaseURL) == "" {
				return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
			}
		default:
			return errors.New("DB_DRIVER must be one of: sqlite, postgres")
		}
	case StoreBackendRedis:
		if strings.TrimSpace(s.RedisURL) == "" {
			return errors.New("REDIS_URL is required when STORE_BACKEND=redis")
		}
	default:
		return errors.New("STORE_BACKEND must be one of: sql, redis")
	}
	return nil
}
