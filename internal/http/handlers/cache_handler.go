// Cache HTTP handlers.
//
// This file exposes the gateway endpoints for cached files:
//   - GET    /{object_id}/{object_type}           (resolve, populating on miss)
//   - GET    /download/{object_id}/{object_type}  (stream the payload)
//   - DELETE /{object_id}/{object_type}           (invalidate)
//   - POST   /                                    (upsert a pointer)
//   - POST   /update_cache                        (start a backfill run)
//
// Content that cannot be produced is answered with 204 and no body; callers
// treat it as "not available right now" rather than as an error.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/files-cache-gateway/internal/domain"
	"github.com/tbourn/files-cache-gateway/internal/services"
	"github.com/tbourn/files-cache-gateway/internal/utils"
)

//
// Service contracts (context-aware)
//

// CacheService defines the cache operations consumed by HTTP handlers.
//
// Implementations must be safe for concurrent use and honor ctx.
type CacheService interface {
	// GetOrCache returns the entry, populating it on a miss.
	GetOrCache(ctx context.Context, objectID int, objectType string) (*domain.CachedFile, error)
	// DownloadWithRepair streams the payload, repairing a stale entry once.
	DownloadWithRepair(ctx context.Context, objectID int, objectType string) (*domain.DownloadResult, error)
	// Copy re-uploads the payload and returns the new, unpersisted pointer.
	Copy(ctx context.Context, f *domain.CachedFile) (domain.Pointer, error)
	// Delete removes the entry and returns it, or nil.
	Delete(ctx context.Context, objectID int, objectType string) (*domain.CachedFile, error)
	// Replace points the key at ptr.
	Replace(ctx context.Context, objectID int, objectType string, ptr domain.Pointer) (*domain.CachedFile, error)
}

// Backfill starts a background reconcile run.
type Backfill interface {
	// Start launches a run and reports false if one is already in progress.
	Start(ctx context.Context) bool
}

//
// Handler wiring
//

// Handlers groups the cache endpoints.
type Handlers struct {
	cache    CacheService
	backfill Backfill
	// bgCtx outlives requests; backfill runs are bound to it so that they stop
	// on shutdown but not when the triggering request ends.
	bgCtx context.Context
}

// New constructs a Handlers instance. A nil bgCtx means context.Background.
func New(cache CacheService, backfill Backfill, bgCtx context.Context) *Handlers {
	if bgCtx == nil {
		bgCtx = context.Background()
	}
	return &Handlers{cache: cache, backfill: backfill, bgCtx: bgCtx}
}

// UpsertRequest is the JSON payload for POST /.
type UpsertRequest struct {
	ObjectID   int            `json:"object_id"   binding:"required,gt=0"  example:"42"`
	ObjectType string         `json:"object_type" binding:"required,max=32" example:"epub"`
	Data       domain.Pointer `json:"data"`
}

// BackfillResponse reports whether POST /update_cache started a new run.
type BackfillResponse struct {
	Status string `json:"status" example:"started"`
}

// objectKey parses the object_id and object_type path parameters, writing a
// 400 response and returning false on invalid input.
func objectKey(c *gin.Context) (int, string, bool) {
	id, ok := utils.PositiveID(c.Param("object_id"))
	if !ok {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "object_id must be a positive integer")
		return 0, "", false
	}
	typ := strings.TrimSpace(c.Param("object_type"))
	if typ == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "object_type is required")
		return 0, "", false
	}
	return id, typ, true
}

// serviceError translates a service error into a response.
func serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnavailable):
		noContent(c)
	case errors.Is(err, services.ErrInvalidObject):
		fail(c, http.StatusBadRequest, ErrCodeInvalidObject, err.Error())
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, "cached file was recreated concurrently")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The client is gone or the deadline passed; nothing useful to send.
		c.Status(http.StatusServiceUnavailable)
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeStoreFailed, "cache store failure")
	}
}

// GetCachedFile godoc
// @ID          getCachedFile
// @Summary     Resolve a cached file
// @Description Returns the cache entry for the item representation, uploading it to the relay first on a miss.
// @Description With copy=true the payload is re-uploaded and the returned entry carries the new, unpersisted pointer.
// @Tags        Cache
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       object_id    path   int     true  "Catalog item id"  minimum(1) example(42)
// @Param       object_type  path   string  true  "Representation"   example(epub)
// @Param       copy         query  bool    false "Return a fresh copy of the relay message"
//
// @Success     200  {object} domain.CachedFile
// @Success     204  {string} string "Content unavailable"
// @Failure     400  {object} handlers.ErrorResponse "Invalid object id"
// @Failure     401  {object} handlers.ErrorResponse "Wrong API key"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /{object_id}/{object_type} [get]
func (h *Handlers) GetCachedFile(c *gin.Context) {
	id, typ, valid := objectKey(c)
	if !valid {
		return
	}

	ctx := c.Request.Context()
	f, err := h.cache.GetOrCache(ctx, id, typ)
	if err != nil {
		serviceError(c, err)
		return
	}

	if utils.BoolDefault(c.Query("copy"), false) {
		ptr, err := h.cache.Copy(ctx, f)
		if err != nil {
			serviceError(c, err)
			return
		}
		cp := *f
		cp.ChatID, cp.MessageID = ptr.ChatID, ptr.MessageID
		f = &cp
	}

	ok(c, http.StatusOK, f)
}

// DownloadCachedFile godoc
// @ID          downloadCachedFile
// @Summary     Download a cached file
// @Description Streams the payload from the relay. The UTF-8 filename and caption are sent base64-encoded in X-Filename-B64 and X-Caption-B64.
// @Tags        Cache
// @Produce     octet-stream
// @Security    ApiKeyAuth
//
// @Param       object_id    path   int     true  "Catalog item id"  minimum(1) example(42)
// @Param       object_type  path   string  true  "Representation"   example(epub)
//
// @Success     200  {file}   file
// @Header      200  {string} Content-Disposition "attachment; filename=<ascii>"
// @Header      200  {string} X-Filename-B64 "base64 of the UTF-8 filename"
// @Header      200  {string} X-Caption-B64  "base64 of the UTF-8 caption"
// @Success     204  {string} string "Content unavailable"
// @Failure     400  {object} handlers.ErrorResponse "Invalid object id"
// @Failure     401  {object} handlers.ErrorResponse "Wrong API key"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /download/{object_id}/{object_type} [get]
func (h *Handlers) DownloadCachedFile(c *gin.Context) {
	id, typ, valid := objectKey(c)
	if !valid {
		return
	}

	res, err := h.cache.DownloadWithRepair(c.Request.Context(), id, typ)
	if err != nil {
		serviceError(c, err)
		return
	}
	streamFile(c, res)
}

// DeleteCachedFile godoc
// @ID          deleteCachedFile
// @Summary     Invalidate a cached file
// @Description Removes the cache entry. The relay message is left untouched.
// @Tags        Cache
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       object_id    path   int     true  "Catalog item id"  minimum(1) example(42)
// @Param       object_type  path   string  true  "Representation"   example(epub)
//
// @Success     200  {object} domain.CachedFile "Deleted entry"
// @Success     204  {string} string "Nothing was cached"
// @Failure     400  {object} handlers.ErrorResponse "Invalid object id"
// @Failure     401  {object} handlers.ErrorResponse "Wrong API key"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /{object_id}/{object_type} [delete]
func (h *Handlers) DeleteCachedFile(c *gin.Context) {
	id, typ, valid := objectKey(c)
	if !valid {
		return
	}

	f, err := h.cache.Delete(c.Request.Context(), id, typ)
	if err != nil {
		serviceError(c, err)
		return
	}
	if f == nil {
		noContent(c)
		return
	}
	ok(c, http.StatusOK, f)
}

// UpsertCachedFile godoc
// @ID          upsertCachedFile
// @Summary     Create or replace a cached file
// @Description Points the item representation at an existing relay message, replacing any previous entry.
// @Tags        Cache
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
//
// @Param       body  body  handlers.UpsertRequest  true  "Entry"
//
// @Success     200  {object} domain.CachedFile
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     401  {object} handlers.ErrorResponse "Wrong API key"
// @Failure     409  {object} handlers.ErrorResponse "Recreated concurrently"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      / [post]
func (h *Handlers) UpsertCachedFile(c *gin.Context) {
	var req UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid payload")
		return
	}
	typ := strings.TrimSpace(req.ObjectType)
	if typ == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "object_type is required")
		return
	}
	if req.Data.MessageID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "data.message_id must be positive")
		return
	}

	f, err := h.cache.Replace(c.Request.Context(), req.ObjectID, typ, req.Data)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, f)
}

// UpdateCache godoc
// @ID          updateCache
// @Summary     Start a backfill run
// @Description Caches every available representation of every catalog item in the background. Returns immediately.
// @Tags        Cache
// @Produce     json
// @Security    ApiKeyAuth
//
// @Success     200  {object} handlers.BackfillResponse
// @Failure     401  {object} handlers.ErrorResponse "Wrong API key"
// @Router      /update_cache [post]
func (h *Handlers) UpdateCache(c *gin.Context) {
	status := "running"
	if h.backfill.Start(h.bgCtx) {
		status = "started"
	}
	ok(c, http.StatusOK, BackfillResponse{Status: status})
}
