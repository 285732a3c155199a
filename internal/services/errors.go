// Package services defines the cache orchestration logic of the gateway.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Remote failures never cross the service boundary as-is: they are logged and
// collapsed into ErrUnavailable. Translation into HTTP status codes is
// performed at the handler layer.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means no content could be produced for the requested key.
	// The underlying cause has already been logged.
	ErrUnavailable = errors.New("content unavailable")

	// ErrInvalidObject is returned for a non-positive object id or an empty
	// object type.
	ErrInvalidObject = errors.New("invalid object id or type")

	// ErrConflict is returned by Replace when another writer recreated the
	// entry between the delete and the create.
	ErrConflict = errors.New("cached file already exists")
)

// CatalogPageError reports which catalog page failed during a full listing.
type CatalogPageError struct {
	Page int
	Err  error
}

func (e *CatalogPageError) Error() string {
	return fmt.Sprintf("list catalog page %d: %v", e.Page, e.Err)
}

func (e *CatalogPageError) Unwrap() error { return e.Err }
