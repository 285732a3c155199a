package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api/v1" || cfg.APIKey != "" || cfg.GinMode != "release" {
		t.Fatalf("api defaults: %+v", cfg)
	}
	if cfg.Store != (StoreConfig{
		Backend:  StoreBackendSQL,
		DBDriver: "sqlite",
		DBPath:   "cache.db",
		RedisURL: "redis://localhost:6379/0",
	}) {
		t.Fatalf("store defaults: %+v", cfg.Store)
	}
	if cfg.Backfill != (BackfillConfig{Concurrency: 1}) {
		t.Fatalf("backfill defaults: %+v", cfg.Backfill)
	}
	if cfg.WriteTimeout != 10*time.Minute || cfg.UpstreamTimeout != 5*time.Minute {
		t.Fatalf("timeouts: write=%v upstream=%v", cfg.WriteTimeout, cfg.UpstreamTimeout)
	}
	if cfg.CORS.AllowedOrigins != nil {
		t.Fatalf("cors: %#v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	for k, v := range map[string]string{
		"PORT":                        "8088",
		"WRITE_TIMEOUT":               "3s",
		"MAX_HEADER_BYTES":            "8192",
		"GIN_MODE":                    "weird",
		"LOG_LEVEL":                   "WARNING",
		"LOG_PRETTY":                  "yes",
		"SWAGGER_ENABLED":             "on",
		"API_BASE_PATH":               "api/v1/",
		"API_KEY":                     "secret",
		"STORE_BACKEND":               "REDIS",
		"REDIS_URL":                   "redis://cache:6379/2",
		"LIBRARY_URL":                 "http://lib.local",
		"LIBRARY_API_KEY":             "lk",
		"DOWNLOADER_URL":              "https://dl.local",
		"FILES_URL":                   "http://files.local:9000",
		"FILES_API_KEY":               "fk",
		"UPSTREAM_TIMEOUT":            "30s",
		"BACKFILL_CONCURRENCY":        "4",
		"BACKFILL_RPS":                "2.5",
		"RATE_RPS":                    "x",
		"RATE_BURST":                  "nope",
		"CORS_ALLOWED_ORIGINS":        " https://a.com , , http://b ",
		"ENABLE_HSTS":                 "TRUE",
		"HSTS_MAX_AGE":                "24h",
		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
	} {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"port", cfg.Port, "8088"},
		{"write timeout", cfg.WriteTimeout, 3 * time.Second},
		{"max header bytes", cfg.MaxHeaderBytes, 8192},
		{"gin mode", cfg.GinMode, "release"},
		{"log level", cfg.LogLevel, "warn"},
		{"log pretty", cfg.LogPretty, true},
		{"swagger", cfg.SwaggerEnabled, true},
		{"base path", cfg.APIBasePath, "/api/v1"},
		{"api key", cfg.APIKey, "secret"},
		{"store backend", cfg.Store.Backend, StoreBackendRedis},
		{"redis url", cfg.Store.RedisURL, "redis://cache:6379/2"},
		{"library", cfg.Library, UpstreamConfig{URL: "http://lib.local", APIKey: "lk"}},
		{"downloader", cfg.Downloader, UpstreamConfig{URL: "https://dl.local"}},
		{"files", cfg.Files, UpstreamConfig{URL: "http://files.local:9000", APIKey: "fk"}},
		{"upstream timeout", cfg.UpstreamTimeout, 30 * time.Second},
		{"backfill", cfg.Backfill, BackfillConfig{Concurrency: 4, RPS: 2.5}},
		{"rate rps falls back", cfg.RateRPS, 5.0},
		{"rate burst falls back", cfg.RateBurst, 10},
		{"cors", cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}},
		{"security", cfg.Security, SecurityConfig{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}},
		{"otel", cfg.OTEL, OTELConfig{
			Enabled:     true,
			Endpoint:    "otel:4317",
			ServiceName: "files-cache-gateway",
			SampleRatio: 0.75,
		}},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s = %#v, want %#v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"blank port", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"zero timeout", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"blank sqlite path", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "DB_DRIVER"},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"unknown backend", map[string]string{"STORE_BACKEND": "memcached"}, "STORE_BACKEND"},
		{"relative upstream", map[string]string{"FILES_URL": "files:8080/api"}, "FILES_URL"},
		{"ftp upstream", map[string]string{"LIBRARY_URL": "ftp://lib"}, "LIBRARY_URL"},
		{"upstream timeout", map[string]string{"UPSTREAM_TIMEOUT": "0s"}, "UPSTREAM_TIMEOUT"},
		{"backfill concurrency", map[string]string{"BACKFILL_CONCURRENCY": "0"}, "BACKFILL_CONCURRENCY"},
		{"backfill rps", map[string]string{"BACKFILL_RPS": "-2"}, "BACKFILL_RPS"},
		{"rate rps", map[string]string{"RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts age", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"sample ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("err = %v, want mention of %q", err, tc.wantMsg)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Setenv("RATE_BURST", "0")
	t.Setenv("BACKFILL_CONCURRENCY", "0")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"RATE_BURST", "BACKFILL_CONCURRENCY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error misses %s: %v", want, err)
		}
	}
}

func TestEnvBool(t *testing.T) {
	for v, want := range map[string]bool{
		"1": true, "TRUE": true, " yes ": true, "Y": true, "On": true,
		"0": false, "false": false, " no ": false, "N": false, "OFF": false,
	} {
		t.Setenv("CACHEGW_TEST_BOOL", v)
		if got := envBool("CACHEGW_TEST_BOOL", !want); got != want {
			t.Errorf("envBool(%q) = %v", v, got)
		}
	}
	t.Setenv("CACHEGW_TEST_BOOL", "maybe")
	if !envBool("CACHEGW_TEST_BOOL", true) {
		t.Error("unparsable value should fall back to default")
	}
}

func TestEnvParseFallbacks(t *testing.T) {
	t.Setenv("CACHEGW_TEST_DUR", "150ms")
	t.Setenv("CACHEGW_TEST_BAD", "zzz")
	t.Setenv("CACHEGW_TEST_EMPTY", "")

	if got := envDuration("CACHEGW_TEST_DUR", time.Second); got != 150*time.Millisecond {
		t.Errorf("duration = %v", got)
	}
	if got := envDuration("CACHEGW_TEST_BAD", 2*time.Second); got != 2*time.Second {
		t.Errorf("bad duration = %v", got)
	}
	if got := envInt("CACHEGW_TEST_BAD", 7); got != 7 {
		t.Errorf("bad int = %v", got)
	}
	if got := envFloat("CACHEGW_TEST_EMPTY", 1.5); got != 1.5 {
		t.Errorf("empty float = %v", got)
	}
	if got := env("CACHEGW_TEST_EMPTY", "d"); got != "d" {
		t.Errorf("empty string = %q", got)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	for in, want := range map[string]string{
		"":        "/",
		" / ":     "/",
		"v1":      "/v1",
		"/v1/":    "/v1",
		"api/v1/": "/api/v1",
		"/api/v1": "/api/v1",
	} {
		if got := normalizeBasePath(in); got != want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
