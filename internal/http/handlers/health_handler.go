package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StoreProbe is implemented by cache stores that can report liveness.
type StoreProbe interface {
	Ping(ctx context.Context) error
}

// Counter is implemented by stores that can count their entries.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status" example:"ok"`
	CachedFiles *int64 `json:"cached_files,omitempty" example:"1024"`
}

// healthTimeout bounds the store probe so a stuck backend cannot hang
// orchestrator health checks.
const healthTimeout = 2 * time.Second

// Health godoc
// @ID          health
// @Summary     Liveness and store health
// @Description Reports "ok" when the cache store answers. When the store supports it, the number of cached files is included.
// @Tags        Health
// @Produce     json
// @Success     200  {object} handlers.HealthResponse
// @Failure     503  {object} handlers.ErrorResponse "Store unreachable"
// @Router      /health [get]
func Health(store StoreProbe) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		if store == nil {
			ok(c, http.StatusOK, HealthResponse{Status: "ok"})
			return
		}
		if err := store.Ping(ctx); err != nil {
			_ = c.Error(err)
			fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "cache store unreachable")
			return
		}

		resp := HealthResponse{Status: "ok"}
		if cnt, isCounter := store.(Counter); isCounter {
			if n, err := cnt.Count(ctx); err == nil {
				resp.CachedFiles = &n
			}
		}
		ok(c, http.StatusOK, resp)
	}
}
