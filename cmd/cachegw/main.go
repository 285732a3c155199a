// Command cachegw runs the files cache gateway.
//
//	cachegw serve                 # HTTP API
//	cachegw reconcile             # one-shot backfill of the whole catalog
//
// Configuration comes from the environment (optionally seeded from a .env
// file); flags override the few settings that are handy on the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/tbourn/files-cache-gateway/internal/config"
	"github.com/tbourn/files-cache-gateway/internal/observability"
	"github.com/tbourn/files-cache-gateway/internal/upstream"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	app := &cli.App{
		Name:    "cachegw",
		Usage:   "Cache catalog files in the blob relay and serve them over HTTP.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file loaded before reading the environment (missing file is ignored)",
			},
		},
		Before: func(c *cli.Context) error {
			return loadEnvFile(c.String("env-file"))
		},
		Commands: []*cli.Command{
			serveCmd,
			reconcileCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("cachegw failed")
	}
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "start the HTTP gateway",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "port",
			Aliases: []string{"p"},
			EnvVars: []string{"PORT"},
			Usage:   "port to bind the server to (overrides PORT)",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if p := c.String("port"); p != "" {
			cfg.Port = p
		}

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Serve(ctx)
	},
}

var reconcileCmd = &cli.Command{
	Name:  "reconcile",
	Usage: "cache every available representation of every catalog item, then exit",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "uploaded-gte", Usage: "only books uploaded on or after YYYY-MM-DD"},
		&cli.StringFlag{Name: "uploaded-lte", Usage: "only books uploaded on or before YYYY-MM-DD"},
		&cli.IntFlag{Name: "concurrency", Usage: "parallel populates (overrides BACKFILL_CONCURRENCY)"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if n := c.Int("concurrency"); n > 0 {
			cfg.Backfill.Concurrency = n
		}

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		a.backfill.Filter = upstream.BookFilter{
			UploadedGTE: c.String("uploaded-gte"),
			UploadedLTE: c.String("uploaded-lte"),
		}
		rep, err := a.backfill.Reconcile(ctx)
		if err != nil {
			if interrupted(ctx, err) {
				log.Warn().Msg("reconcile interrupted")
				return nil
			}
			return fmt.Errorf("reconcile: %w", err)
		}
		if rep.Failed > 0 {
			return cli.Exit(fmt.Sprintf("reconcile finished with %d failed populates", rep.Failed), 2)
		}
		return nil
	},
}

// loadConfig reads and validates the environment, then configures logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	observability.SetupLogging(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	return cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// interrupted reports whether err only reflects a requested shutdown.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}
