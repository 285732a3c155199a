// Package domain defines the persistence and transport models for the files
// cache gateway. CachedFile is mapped with GORM and is the only entity the
// gateway persists; the remaining types describe upstream payloads.
package domain

import "time"

// CachedFile maps a catalog item representation to the relay message that
// holds its bytes. Exactly zero or one row exists per (object_id, object_type).
//
// Fields:
//   - ID: surrogate primary key.
//   - ObjectID: catalog item id.
//   - ObjectType: representation/format discriminator (e.g. "fb2", "epub").
//   - MessageID / ChatID: relay pointer; the only way to retrieve the bytes.
//   - CreatedAt: set on insert. Rows are never updated in place.
type CachedFile struct {
	ID         uint      `json:"id"          gorm:"primaryKey;autoIncrement"`
	ObjectID   int       `json:"object_id"   gorm:"not null;uniqueIndex:ux_cached_files_object,priority:1"`
	ObjectType string    `json:"object_type" gorm:"type:varchar(32);not null;uniqueIndex:ux_cached_files_object,priority:2"`
	MessageID  int64     `json:"message_id"  gorm:"not null"`
	ChatID     int64     `json:"chat_id"     gorm:"not null"`
	CreatedAt  time.Time `json:"-"`
}

// TableName returns the database table name for CachedFile.
func (CachedFile) TableName() string { return "cached_files" }

// Pointer returns the relay handle stored in the entry.
func (f CachedFile) Pointer() Pointer {
	return Pointer{ChatID: f.ChatID, MessageID: f.MessageID}
}

// Pointer identifies where cached bytes live inside the blob relay.
type Pointer struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}
