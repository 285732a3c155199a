package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/files-cache-gateway/internal/domain"
)

// SQLStore exposes the repository functions as a cache store bound to one
// database handle.
type SQLStore struct {
	DB *gorm.DB
}

// NewSQLStore returns a store backed by db.
func NewSQLStore(db *gorm.DB) *SQLStore { return &SQLStore{DB: db} }

// Find proxies FindCachedFile.
func (s *SQLStore) Find(ctx context.Context, objectID int, objectType string) (*domain.CachedFile, error) {
	return FindCachedFile(ctx, s.DB, objectID, objectType)
}

// Create proxies CreateCachedFile.
func (s *SQLStore) Create(ctx context.Context, objectID int, objectType string, ptr domain.Pointer) (*domain.CachedFile, error) {
	return CreateCachedFile(ctx, s.DB, objectID, objectType, ptr)
}

// Delete proxies DeleteCachedFile.
func (s *SQLStore) Delete(ctx context.Context, objectID int, objectType string) (*domain.CachedFile, error) {
	return DeleteCachedFile(ctx, s.DB, objectID, objectType)
}

// Count proxies CountCachedFiles.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	return CountCachedFiles(ctx, s.DB)
}

// Ping checks the underlying database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
