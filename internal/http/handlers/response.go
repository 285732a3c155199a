// Package handlers implements the cache gateway's HTTP endpoints.
//
// Every failure is written as an ErrorResponse envelope:
//
//	HTTP/1.1 400 Bad Request
//	{"request_id": "123e4567-...", "code": "invalid_object", "message": "object_id must be a positive integer"}
//
// Lookups that cannot produce a file answer 204 with no body.
package handlers

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/files-cache-gateway/internal/domain"
	"github.com/tbourn/files-cache-gateway/internal/http/middleware"
)

// Download response headers.
const (
	HeaderFilenameB64 = "X-Filename-B64"
	HeaderCaptionB64  = "X-Caption-B64"
)

// ErrorResponse is the error envelope returned by all endpoints.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// One of the ErrCode constants
	Code    string `json:"code" example:"invalid_object"`
	Message string `json:"message" example:"object_id must be a positive integer"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged with the
// request logger; 4xx are left to the access log.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("request failed")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router write fallback errors in the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }

// streamFile writes res as an attachment and closes its body.
//
// The ASCII filename goes into Content-Disposition; the full UTF-8 filename
// and the caption travel base64-encoded (standard alphabet) in
// X-Filename-B64 and X-Caption-B64 so that no header carries raw non-ASCII
// bytes. Content length is unknown, so the body is sent chunked.
func streamFile(c *gin.Context, res *domain.DownloadResult) {
	defer res.Body.Close()

	middleware.MarkStreaming(c)
	c.DataFromReader(http.StatusOK, -1, "application/octet-stream", res.Body, map[string]string{
		"Content-Disposition": "attachment; filename=" + strconv.Quote(res.FilenameASCII),
		HeaderFilenameB64:     b64(res.Filename),
		HeaderCaptionB64:      b64(res.Caption),
	})
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }
