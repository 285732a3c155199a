package repo

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tbourn/files-cache-gateway/internal/domain"
)

func TestOpen_Errors(t *testing.T) {
	missingDir := filepath.Join(t.TempDir(), "nope", "cache.db")

	if _, err := Open(DriverSQLite, missingDir); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing dir: err = %v, want fs.ErrNotExist", err)
	}
	if _, err := Open("oracle", "whatever"); err == nil || !strings.Contains(err.Error(), "oracle") {
		t.Fatalf("unsupported driver: err = %v", err)
	}
}

func TestOpen_SQLiteTunedAndMigrated(t *testing.T) {
	// Empty driver defaults to SQLite.
	db, err := Open("", filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var mode string
	var busy int
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&mode); err != nil || !strings.EqualFold(mode, "wal") {
		t.Fatalf("journal_mode = %q (err %v)", mode, err)
	}
	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busy); err != nil || busy != 5000 {
		t.Fatalf("busy_timeout = %d (err %v)", busy, err)
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 10 {
		t.Fatalf("MaxOpenConnections = %d", got)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasTable(&domain.CachedFile{}) || !m.HasIndex(&domain.CachedFile{}, "ux_cached_files_object") {
		t.Fatal("cached_files table or its unique index is missing")
	}
}
