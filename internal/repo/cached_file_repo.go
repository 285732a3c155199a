// Package repo implements the data persistence layer for cached file
// pointers, backed by GORM. This file provides repository functions for the
// CachedFile model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. There is
// deliberately no update function: a stale entry is deleted and a fresh one
// created.
//
// Error semantics:
//   - When an entry is not found, functions return ErrNotFound.
//   - A second entry for the same (object_id, object_type) yields ErrDuplicate.
//   - Other DB errors are propagated as-is.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/files-cache-gateway/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that an entry already exists for the given
// (object_id, object_type) pair.
var ErrDuplicate = errors.New("duplicate")

// FindCachedFile fetches the entry for (objectID, objectType), or ErrNotFound.
func FindCachedFile(ctx context.Context, db *gorm.DB, objectID int, objectType string) (*domain.CachedFile, error) {
	var f domain.CachedFile
	err := db.WithContext(ctx).
		Where("object_id = ? AND object_type = ?", objectID, objectType).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateCachedFile inserts a new entry pointing at ptr. It returns
// ErrDuplicate when the key is already taken.
func CreateCachedFile(ctx context.Context, db *gorm.DB, objectID int, objectType string, ptr domain.Pointer) (*domain.CachedFile, error) {
	f := &domain.CachedFile{
		ObjectID:   objectID,
		ObjectType: objectType,
		ChatID:     ptr.ChatID,
		MessageID:  ptr.MessageID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return f, nil
}

// DeleteCachedFile removes the entry for (objectID, objectType) and returns
// the removed row. It is idempotent: a missing entry yields (nil, nil).
func DeleteCachedFile(ctx context.Context, db *gorm.DB, objectID int, objectType string) (*domain.CachedFile, error) {
	var deleted *domain.CachedFile
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := FindCachedFile(ctx, tx, objectID, objectType)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&domain.CachedFile{}, f.ID).Error; err != nil {
			return err
		}
		deleted = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// CountCachedFiles returns the total number of entries.
func CountCachedFiles(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.CachedFile{}).Count(&total).Error
	return total, err
}

// isUniqueViolation detects unique-constraint violations across drivers that
// may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite: "UNIQUE constraint failed"; Postgres: "duplicate key value violates unique constraint"
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
