// Package repo persists cached file pointers with GORM, on SQLite (pure Go
// driver) or PostgreSQL.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	postgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/files-cache-gateway/internal/domain"
)

// Supported values for the DB_DRIVER setting.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type pool struct {
	maxOpen, maxIdle int
}

// sqlitePragmas trade durability of the last transactions for write
// throughput; the cache can always be repopulated from upstream.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA busy_timeout=5000;",
}

// Open connects to the database selected by driver, tunes its pool and
// installs the OpenTelemetry tracing plugin. An empty driver means SQLite.
func Open(driver, dsn string) (*gorm.DB, error) {
	var (
		dialector gorm.Dialector
		p         pool
	)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		// The driver reports a missing directory as "out of memory"; check first.
		if dir := filepath.Dir(dsn); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, fmt.Errorf("sqlite: %w", err)
			}
		}
		dialector, p = sqlite.Open(dsn), pool{maxOpen: 10, maxIdle: 10}
	case DriverPostgres:
		dialector, p = postgres.Open(dsn), pool{maxOpen: 20, maxIdle: 10}
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if dialector.Name() == "sqlite" {
		for _, pragma := range sqlitePragmas {
			if err := db.Exec(pragma).Error; err != nil {
				return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
			}
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(p.maxOpen)
	sqlDB.SetMaxIdleConns(p.maxIdle)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("install tracing plugin: %w", err)
	}
	return db, nil
}

// AutoMigrate creates or updates the cached_files table and its unique index.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.CachedFile{})
}
