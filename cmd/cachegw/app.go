package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/files-cache-gateway/internal/config"
	httpapi "github.com/tbourn/files-cache-gateway/internal/http"
	"github.com/tbourn/files-cache-gateway/internal/observability"
	"github.com/tbourn/files-cache-gateway/internal/redisstore"
	"github.com/tbourn/files-cache-gateway/internal/repo"
	"github.com/tbourn/files-cache-gateway/internal/services"
	"github.com/tbourn/files-cache-gateway/internal/upstream"
)

// shutdownTimeout bounds graceful shutdown of the server and exporters.
const shutdownTimeout = 15 * time.Second

// store is what the gateway needs from a cache store backend.
type store interface {
	services.CacheStore
	Ping(ctx context.Context) error
}

// app holds the wired services and the resources to release on exit.
type app struct {
	cfg      config.Config
	store    store
	cache    *services.CacheService
	backfill *services.Backfiller
	closers  []func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdownOTel)

	st, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, closeStore)

	hc := upstream.NewHTTPClient(cfg.UpstreamTimeout)
	upstreamCfg := func(u config.UpstreamConfig) upstream.Config {
		return upstream.Config{BaseURL: u.URL, APIKey: u.APIKey, Timeout: cfg.UpstreamTimeout}
	}
	a.cache = services.NewCacheService(
		st,
		upstream.NewLibraryClient(upstreamCfg(cfg.Library), hc),
		upstream.NewDownloaderClient(upstreamCfg(cfg.Downloader), hc),
		upstream.NewFilesClient(upstreamCfg(cfg.Files), hc),
	)
	a.backfill = services.NewBackfiller(a.cache, cfg.Backfill.Concurrency, cfg.Backfill.RPS)

	if cfg.APIKey == "" {
		log.Warn().Msg("API_KEY is empty; the cache API is unauthenticated")
	}

	log.Info().
		Str("store", cfg.Store.Backend).
		Str("library", cfg.Library.URL).
		Str("downloader", cfg.Downloader.URL).
		Str("files", cfg.Files.URL).
		Msg("gateway wired")
	return a, nil
}

// openStore connects the configured backend and returns it with its closer.
func openStore(ctx context.Context, sc config.StoreConfig) (store, func(context.Context) error, error) {
	switch sc.Backend {
	case config.StoreBackendRedis:
		client, err := redisstore.Dial(ctx, sc.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(client), func(context.Context) error { return client.Close() }, nil
	default:
		dsn := sc.DBPath
		if sc.DBDriver == repo.DriverPostgres {
			dsn = sc.DatabaseURL
		}
		db, err := repo.Open(sc.DBDriver, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		closeDB := func(context.Context) error { return sqlDB.Close() }
		if err := repo.AutoMigrate(db); err != nil {
			_ = closeDB(ctx)
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return repo.NewSQLStore(db), closeDB, nil
	}
}

// Handler builds the Gin engine. Background work started through it is
// bound to ctx.
func (a *app) Handler(ctx context.Context) http.Handler {
	gin.SetMode(a.cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(ctx, r, httpapi.Deps{
		Cache:    a.cache,
		Backfill: a.backfill,
		Store:    a.store,
	}, a.cfg)
	return r
}

// Serve runs the HTTP server until ctx is canceled, then shuts it down
// gracefully.
func (a *app) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.Handler(ctx),
		ReadTimeout:       a.cfg.ReadTimeout,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}
	a.closers = nil
}
