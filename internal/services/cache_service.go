// Package services – CacheService
//
// This file implements CacheService, the orchestrator that turns a request
// for (object_id, object_type) into a cached relay pointer and, from there,
// into a downloadable stream. It composes four collaborators: the cache store,
// the catalog, the retrieval adapter (downloader) and the blob relay.
//
// Behavior summary:
//   - GetOrCache returns the stored entry or populates it on a miss.
//   - Populating is strictly sequential (book → fetch → upload → create) and
//     deduplicated per key: concurrent misses share one in-flight populate.
//   - Download fans out three independent reads and joins them. Only a failed
//     blob read marks the pointer stale and deletes the entry.
//   - DownloadWithRepair retries the get/download pair exactly once.
//
// Observability: all public methods are OpenTelemetry-instrumented and remote
// failures are logged with the object key before being collapsed into
// ErrUnavailable.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/files-cache-gateway/internal/domain"
	"github.com/tbourn/files-cache-gateway/internal/repo"
	"github.com/tbourn/files-cache-gateway/internal/upstream"
)

// CacheStore is the durable (object_id, object_type) → pointer mapping.
// Find returns repo.ErrNotFound on a miss; Create returns repo.ErrDuplicate
// when the key is taken; Delete is idempotent and returns the removed entry,
// or nil when there was none.
type CacheStore interface {
	Find(ctx context.Context, objectID int, objectType string) (*domain.CachedFile, error)
	Create(ctx context.Context, objectID int, objectType string, ptr domain.Pointer) (*domain.CachedFile, error)
	Delete(ctx context.Context, objectID int, objectType string) (*domain.CachedFile, error)
}

// Catalog reads book metadata.
type Catalog interface {
	GetBook(ctx context.Context, id int) (*domain.Book, error)
	ListBooks(ctx context.Context, page, size int, f upstream.BookFilter) (*domain.BooksPage, error)
}

// Retriever fetches raw content and filename metadata from the origin.
type Retriever interface {
	Fetch(ctx context.Context, sourceID, objectID int, objectType string) (*upstream.Content, error)
	GetFilename(ctx context.Context, objectID int, objectType string) (domain.FilenameData, error)
}

// Relay stores payloads and reads them back by pointer.
type Relay interface {
	Upload(ctx context.Context, content io.Reader, filename, caption string) (domain.Pointer, error)
	Download(ctx context.Context, ptr domain.Pointer) (io.ReadCloser, error)
}

// CacheService coordinates cache population and retrieval.
type CacheService struct {
	Store     CacheStore
	Catalog   Catalog
	Retriever Retriever
	Relay     Relay

	// Log receives remote-failure diagnostics.
	Log zerolog.Logger

	flights singleflight.Group
}

// NewCacheService wires a CacheService to its collaborators.
func NewCacheService(store CacheStore, catalog Catalog, retriever Retriever, relay Relay) *CacheService {
	return &CacheService{
		Store:     store,
		Catalog:   catalog,
		Retriever: retriever,
		Relay:     relay,
		Log:       log.With().Str("component", "cache").Logger(),
	}
}

func (s *CacheService) tracer() trace.Tracer { return otel.Tracer("services/CacheService") }

func keyAttrs(objectID int, objectType string) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.Int("object.id", objectID),
		attribute.String("object.type", objectType),
	)
}

func validateKey(objectID int, objectType string) error {
	if objectID <= 0 || objectType == "" {
		return ErrInvalidObject
	}
	return nil
}

// logFailure logs err against the object key and returns ErrUnavailable.
func (s *CacheService) logFailure(objectID int, objectType, stage string, err error) error {
	s.Log.Error().
		Err(err).
		Int("object_id", objectID).
		Str("object_type", objectType).
		Str("stage", stage).
		Msg("cache operation failed")
	return ErrUnavailable
}

// GetOrCache returns the entry for (objectID, objectType), populating it on a
// miss. It is the single entry point for both metadata reads and downloads.
func (s *CacheService) GetOrCache(ctx context.Context, objectID int, objectType string) (*domain.CachedFile, error) {
	ctx, span := s.tracer().Start(ctx, "GetOrCache", keyAttrs(objectID, objectType))
	defer span.End()

	if err := validateKey(objectID, objectType); err != nil {
		return nil, err
	}

	f, err := s.Store.Find(ctx, objectID, objectType)
	switch {
	case err == nil:
		cacheLookups.WithLabelValues("hit").Inc()
		return f, nil
	case errors.Is(err, repo.ErrNotFound):
		cacheLookups.WithLabelValues("miss").Inc()
	default:
		cacheLookups.WithLabelValues("error").Inc()
		return nil, s.logFailure(objectID, objectType, "find", err)
	}

	return s.Cache(ctx, objectID, objectType)
}

// Cache populates the entry for (objectID, objectType). Concurrent calls for
// the same key share a single populate and its result. The shared populate
// is detached from the first caller's cancellation so that one caller going
// away does not fail the others.
func (s *CacheService) Cache(ctx context.Context, objectID int, objectType string) (*domain.CachedFile, error) {
	ctx, span := s.tracer().Start(ctx, "Cache", keyAttrs(objectID, objectType))
	defer span.End()

	if err := validateKey(objectID, objectType); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%d:%s", objectID, objectType)
	flightCtx := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(key, func() (any, error) {
		return s.populate(flightCtx, objectID, objectType)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			cachePopulateShared.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.CachedFile), nil
	}
}

// populate runs the sequential compute-and-store pipeline. Any remote
// failure aborts it without creating an entry.
func (s *CacheService) populate(ctx context.Context, objectID int, objectType string) (*domain.CachedFile, error) {
	// A flight for this key may have completed between the caller's miss and now.
	if f, err := s.Store.Find(ctx, objectID, objectType); err == nil {
		cachePopulates.WithLabelValues("already_cached").Inc()
		return f, nil
	}

	book, err := s.Catalog.GetBook(ctx, objectID)
	if err != nil {
		cachePopulates.WithLabelValues("catalog_error").Inc()
		return nil, s.logFailure(objectID, objectType, "get_book", err)
	}

	content, err := s.Retriever.Fetch(ctx, book.Source.ID, objectID, objectType)
	if err != nil {
		cachePopulates.WithLabelValues("fetch_error").Inc()
		return nil, s.logFailure(objectID, objectType, "fetch", err)
	}
	defer content.Body.Close()

	ptr, err := s.Relay.Upload(ctx, content.Body, content.Filename, book.Caption())
	if err != nil {
		cachePopulates.WithLabelValues("upload_error").Inc()
		return nil, s.logFailure(objectID, objectType, "upload", err)
	}

	f, err := s.Store.Create(ctx, objectID, objectType, ptr)
	if errors.Is(err, repo.ErrDuplicate) {
		// Another process won the race; its entry is just as valid.
		existing, ferr := s.Store.Find(ctx, objectID, objectType)
		if ferr != nil {
			cachePopulates.WithLabelValues("store_error").Inc()
			return nil, s.logFailure(objectID, objectType, "find_after_conflict", ferr)
		}
		cachePopulates.WithLabelValues("conflict_resolved").Inc()
		return existing, nil
	}
	if err != nil {
		cachePopulates.WithLabelValues("store_error").Inc()
		return nil, s.logFailure(objectID, objectType, "create", err)
	}

	cachePopulates.WithLabelValues("ok").Inc()
	s.Log.Info().
		Int("object_id", objectID).
		Str("object_type", objectType).
		Int64("chat_id", ptr.ChatID).
		Int64("message_id", ptr.MessageID).
		Msg("cached file")
	return f, nil
}

// Download assembles a DownloadResult for f. The blob, the filename and the
// book (for its caption) are fetched concurrently and all three must succeed.
//
// A failed blob fetch means the pointer is stale: the entry is deleted so the
// next GetOrCache repopulates it. Filename or caption failures leave the entry
// in place.
func (s *CacheService) Download(ctx context.Context, f *domain.CachedFile) (*domain.DownloadResult, error) {
	ctx, span := s.tracer().Start(ctx, "Download", keyAttrs(f.ObjectID, f.ObjectType))
	defer span.End()

	var (
		wg sync.WaitGroup

		body    io.ReadCloser
		blobErr error

		names   domain.FilenameData
		nameErr error

		book    *domain.Book
		bookErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		body, blobErr = s.Relay.Download(ctx, f.Pointer())
	}()
	go func() {
		defer wg.Done()
		names, nameErr = s.Retriever.GetFilename(ctx, f.ObjectID, f.ObjectType)
	}()
	go func() {
		defer wg.Done()
		book, bookErr = s.Catalog.GetBook(ctx, f.ObjectID)
	}()
	wg.Wait()

	if blobErr != nil {
		cacheDownloads.WithLabelValues("stale").Inc()
		s.evictStale(ctx, f, blobErr)
		return nil, ErrUnavailable
	}
	if nameErr != nil {
		body.Close()
		cacheDownloads.WithLabelValues("filename_error").Inc()
		return nil, s.logFailure(f.ObjectID, f.ObjectType, "get_filename", nameErr)
	}
	if bookErr != nil {
		body.Close()
		cacheDownloads.WithLabelValues("caption_error").Inc()
		return nil, s.logFailure(f.ObjectID, f.ObjectType, "get_book", bookErr)
	}

	if names.FilenameASCII == "" {
		names.FilenameASCII = domain.ASCIIFilename(names.Filename)
	}

	cacheDownloads.WithLabelValues("ok").Inc()
	return &domain.DownloadResult{
		Body:          body,
		Filename:      names.Filename,
		FilenameASCII: names.FilenameASCII,
		Caption:       book.Caption(),
	}, nil
}

// evictStale deletes f after its blob could not be fetched. It leaves the
// entry alone when the request itself was canceled (the failure says nothing
// about the pointer) or when the stored pointer already differs from f's,
// meaning a concurrent request has repaired it.
func (s *CacheService) evictStale(ctx context.Context, f *domain.CachedFile, cause error) {
	lg := s.Log.With().
		Int("object_id", f.ObjectID).
		Str("object_type", f.ObjectType).
		Int64("chat_id", f.ChatID).
		Int64("message_id", f.MessageID).
		Logger()

	if ctx.Err() != nil {
		lg.Warn().Err(cause).Msg("blob fetch aborted; entry kept")
		return
	}

	current, err := s.Store.Find(ctx, f.ObjectID, f.ObjectType)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			lg.Error().Err(err).Msg("stale entry lookup failed")
		}
		return
	}
	if current.Pointer() != f.Pointer() {
		lg.Info().Msg("stale entry already replaced")
		return
	}

	if _, err := s.Store.Delete(ctx, f.ObjectID, f.ObjectType); err != nil {
		lg.Error().Err(err).AnErr("cause", cause).Msg("stale entry delete failed")
		return
	}
	cacheEvictions.Inc()
	lg.Error().Err(cause).Msg("blob fetch failed; stale entry deleted")
}

// DownloadWithRepair resolves (objectID, objectType) to a DownloadResult,
// allowing exactly one repair cycle: if the first download fails (for
// example because it evicted a stale entry), the entry is resolved again and
// the download retried once.
func (s *CacheService) DownloadWithRepair(ctx context.Context, objectID int, objectType string) (*domain.DownloadResult, error) {
	ctx, span := s.tracer().Start(ctx, "DownloadWithRepair", keyAttrs(objectID, objectType))
	defer span.End()

	const attempts = 2
	var lastErr error
	for i := 0; i < attempts; i++ {
		f, err := s.GetOrCache(ctx, objectID, objectType)
		if err != nil {
			return nil, err
		}
		res, err := s.Download(ctx, f)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// Copy re-uploads the payload behind f and returns the new pointer without
// persisting it, so a caller can hand out a relay message it owns. A failed
// blob fetch evicts f like Download does.
func (s *CacheService) Copy(ctx context.Context, f *domain.CachedFile) (domain.Pointer, error) {
	ctx, span := s.tracer().Start(ctx, "Copy", keyAttrs(f.ObjectID, f.ObjectType))
	defer span.End()

	book, err := s.Catalog.GetBook(ctx, f.ObjectID)
	if err != nil {
		return domain.Pointer{}, s.logFailure(f.ObjectID, f.ObjectType, "get_book", err)
	}

	names, err := s.Retriever.GetFilename(ctx, f.ObjectID, f.ObjectType)
	if err != nil {
		return domain.Pointer{}, s.logFailure(f.ObjectID, f.ObjectType, "get_filename", err)
	}

	body, err := s.Relay.Download(ctx, f.Pointer())
	if err != nil {
		s.evictStale(ctx, f, err)
		return domain.Pointer{}, ErrUnavailable
	}
	defer body.Close()

	ptr, err := s.Relay.Upload(ctx, body, names.Filename, book.Caption())
	if err != nil {
		return domain.Pointer{}, s.logFailure(f.ObjectID, f.ObjectType, "upload_copy", err)
	}
	return ptr, nil
}

// Delete invalidates the entry for (objectID, objectType) without touching
// the relay. It returns the removed entry, or nil when nothing was cached.
func (s *CacheService) Delete(ctx context.Context, objectID int, objectType string) (*domain.CachedFile, error) {
	ctx, span := s.tracer().Start(ctx, "Delete", keyAttrs(objectID, objectType))
	defer span.End()

	if err := validateKey(objectID, objectType); err != nil {
		return nil, err
	}
	f, err := s.Store.Delete(ctx, objectID, objectType)
	if err != nil {
		return nil, fmt.Errorf("delete cached file: %w", err)
	}
	return f, nil
}

// Replace points (objectID, objectType) at ptr. Entries are never edited in
// place, so this deletes any existing entry and creates a fresh one.
func (s *CacheService) Replace(ctx context.Context, objectID int, objectType string, ptr domain.Pointer) (*domain.CachedFile, error) {
	ctx, span := s.tracer().Start(ctx, "Replace", keyAttrs(objectID, objectType))
	defer span.End()

	if err := validateKey(objectID, objectType); err != nil {
		return nil, err
	}
	if _, err := s.Store.Delete(ctx, objectID, objectType); err != nil {
		return nil, fmt.Errorf("replace cached file: %w", err)
	}
	f, err := s.Store.Create(ctx, objectID, objectType, ptr)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("replace cached file: %w", err)
	}
	return f, nil
}
