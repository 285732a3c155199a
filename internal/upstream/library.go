package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tbourn/files-cache-gateway/internal/domain"
)

// BookFilter narrows a catalog listing. Empty bounds are omitted.
type BookFilter struct {
	UploadedGTE string // YYYY-MM-DD
	UploadedLTE string // YYYY-MM-DD
}

// LibraryClient reads book metadata from the catalog service.
type LibraryClient struct {
	base
}

// NewLibraryClient returns a catalog client. A nil hc builds a default one.
func NewLibraryClient(cfg Config, hc *http.Client) *LibraryClient {
	return &LibraryClient{base: newBase("library", cfg, hc)}
}

// GetBook fetches a single catalog item.
func (c *LibraryClient) GetBook(ctx context.Context, id int) (*domain.Book, error) {
	var b domain.Book
	if err := c.getJSON(ctx, fmt.Sprintf("/api/v1/books/%d", id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBooks fetches one page of non-deleted catalog items.
func (c *LibraryClient) ListBooks(ctx context.Context, page, size int, f BookFilter) (*domain.BooksPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	q.Set("is_deleted", "false")
	if f.UploadedGTE != "" {
		q.Set("uploaded_gte", f.UploadedGTE)
	}
	if f.UploadedLTE != "" {
		q.Set("uploaded_lte", f.UploadedLTE)
	}

	var p domain.BooksPage
	if err := c.getJSON(ctx, "/api/v1/books/base/", q, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
