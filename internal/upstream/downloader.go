package upstream

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/tbourn/files-cache-gateway/internal/domain"
)

// Content is a streamed file fetched from the origin. Body must be closed.
type Content struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
	Size        int64 // -1 when unknown
}

// DownloaderClient fetches raw bytes and filename metadata for catalog items.
type DownloaderClient struct {
	base
}

// NewDownloaderClient returns a downloader client. A nil hc builds a default one.
func NewDownloaderClient(cfg Config, hc *http.Client) *DownloaderClient {
	return &DownloaderClient{base: newBase("downloader", cfg, hc)}
}

// Fetch streams the objectType representation of objectID using the
// retrieval strategy selected by sourceID.
func (c *DownloaderClient) Fetch(ctx context.Context, sourceID, objectID int, objectType string) (*Content, error) {
	path := fmt.Sprintf("/download/%d/%d/%s", sourceID, objectID, url.PathEscape(objectType))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}

	name := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = fmt.Sprintf("%d.%s", objectID, objectType)
	}
	return &Content{
		Body:        resp.Body,
		Filename:    name,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

// GetFilename returns the display and ASCII filenames for a representation.
// An empty ASCII name from the downloader is derived from the display name.
func (c *DownloaderClient) GetFilename(ctx context.Context, objectID int, objectType string) (domain.FilenameData, error) {
	var fd domain.FilenameData
	path := fmt.Sprintf("/filename/%d/%s", objectID, url.PathEscape(objectType))
	if err := c.getJSON(ctx, path, nil, &fd); err != nil {
		return domain.FilenameData{}, err
	}
	if fd.FilenameASCII == "" {
		fd.FilenameASCII = domain.ASCIIFilename(fd.Filename)
	}
	return fd, nil
}

// filenameFromDisposition extracts the filename parameter, preferring the
// RFC 5987 filename* form that mime.ParseMediaType already decodes.
func filenameFromDisposition(v string) string {
	if v == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return params["filename"]
}
