package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tbourn/files-cache-gateway/internal/domain"
	"github.com/tbourn/files-cache-gateway/internal/repo"
	"github.com/tbourn/files-cache-gateway/internal/upstream"
)

// BackfillPageSize is the page size used when walking the catalog.
const BackfillPageSize = 50

// ReconcileReport summarizes one backfill run.
type ReconcileReport struct {
	Books     int           `json:"books"`
	Checked   int           `json:"checked"`
	Cached    int           `json:"cached"`
	Populated int           `json:"populated"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Backfiller walks the whole catalog and populates every (book, type) pair
// that has no cache entry yet.
type Backfiller struct {
	Cache *CacheService

	// Concurrency bounds the number of populates in flight. Values below 1
	// are treated as 1, which processes pairs strictly in catalog order.
	Concurrency int

	// Limiter, when set, paces populate starts.
	Limiter *rate.Limiter

	// Filter narrows the catalog listing.
	Filter upstream.BookFilter

	running atomic.Bool
}

// NewBackfiller returns a Backfiller with the given concurrency and a
// populate rate of rps per second (unlimited when rps <= 0).
func NewBackfiller(cache *CacheService, concurrency int, rps float64) *Backfiller {
	b := &Backfiller{Cache: cache, Concurrency: concurrency}
	if rps > 0 {
		b.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return b
}

// ListAllBooks reads every catalog page. The first page reports the page
// count; the remaining pages are requested one after another in order. Any
// page failure aborts the listing with a *CatalogPageError.
func (b *Backfiller) ListAllBooks(ctx context.Context) ([]domain.Book, error) {
	first, err := b.Cache.Catalog.ListBooks(ctx, 1, BackfillPageSize, b.Filter)
	if err != nil {
		return nil, &CatalogPageError{Page: 1, Err: err}
	}

	books := make([]domain.Book, 0, first.Total)
	books = append(books, first.Items...)
	for page := 2; page <= first.Pages; page++ {
		p, err := b.Cache.Catalog.ListBooks(ctx, page, BackfillPageSize, b.Filter)
		if err != nil {
			return nil, &CatalogPageError{Page: page, Err: err}
		}
		books = append(books, p.Items...)
	}
	return books, nil
}

// Reconcile lists the catalog and populates every missing entry. A failure
// on one pair is logged and counted; it never stops the run. Only a listing
// failure or cancellation ends the run early.
func (b *Backfiller) Reconcile(ctx context.Context) (ReconcileReport, error) {
	ctx, span := b.Cache.tracer().Start(ctx, "Reconcile")
	defer span.End()

	start := time.Now()
	lg := b.Cache.Log.With().Str("task", "backfill").Logger()
	var rep ReconcileReport

	books, err := b.ListAllBooks(ctx)
	if err != nil {
		backfillRuns.WithLabelValues("list_failed").Inc()
		lg.Error().Err(err).Msg("catalog listing failed")
		return rep, err
	}
	rep.Books = len(books)

	var tally reconcileTally

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, b.Concurrency))

loop:
	for _, book := range books {
		for _, typ := range book.AvailableTypes {
			if gctx.Err() != nil {
				break loop
			}
			id, typ := book.ID, typ
			// Lookup and populate run in the same worker, so a limit of 1
			// handles one pair at a time in catalog order.
			g.Go(func() error { return b.reconcileOne(gctx, id, typ, &tally) })
		}
	}
	werr := g.Wait()

	rep.Checked = int(tally.checked.Load())
	rep.Cached = int(tally.cached.Load())
	rep.Populated = int(tally.populated.Load())
	rep.Failed = int(tally.failed.Load())
	rep.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		backfillRuns.WithLabelValues("canceled").Inc()
		lg.Warn().Err(err).Interface("report", rep).Msg("backfill canceled")
		return rep, err
	}
	if werr != nil {
		backfillRuns.WithLabelValues("canceled").Inc()
		return rep, werr
	}

	backfillRuns.WithLabelValues("ok").Inc()
	lg.Info().
		Int("books", rep.Books).
		Int("checked", rep.Checked).
		Int("cached", rep.Cached).
		Int("populated", rep.Populated).
		Int("failed", rep.Failed).
		Dur("duration", rep.Duration).
		Msg("backfill finished")
	return rep, nil
}

type reconcileTally struct {
	checked, cached, populated, failed atomic.Int64
}

// reconcileOne populates (id, typ) if it has no entry. Per-pair failures are
// counted, not returned; only cancellation stops the group.
func (b *Backfiller) reconcileOne(ctx context.Context, id int, typ string, t *reconcileTally) error {
	t.checked.Add(1)
	_, err := b.Cache.Store.Find(ctx, id, typ)
	switch {
	case err == nil:
		t.cached.Add(1)
		return nil
	case !errors.Is(err, repo.ErrNotFound):
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.failed.Add(1)
		b.Cache.Log.Error().Err(err).Int("object_id", id).Str("object_type", typ).Msg("cache lookup failed")
		return nil
	}

	if b.Limiter != nil {
		if err := b.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if _, err := b.Cache.Cache(ctx, id, typ); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.failed.Add(1)
		return nil
	}
	t.populated.Add(1)
	return nil
}

// Start launches Reconcile in the background and returns true, unless a run
// is already in progress, in which case it returns false and does nothing.
// ctx bounds the run and should outlive the triggering request.
func (b *Backfiller) Start(ctx context.Context) bool {
	if !b.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer b.running.Store(false)
		_, _ = b.Reconcile(ctx)
	}()
	return true
}

// Running reports whether a background run is in progress.
func (b *Backfiller) Running() bool { return b.running.Load() }
