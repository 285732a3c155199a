package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/tbourn/files-cache-gateway/internal/domain"
)

// FilesClient uploads payloads to the blob relay and reads them back by
// pointer.
type FilesClient struct {
	base
}

// NewFilesClient returns a relay client. A nil hc builds a default one.
func NewFilesClient(cfg Config, hc *http.Client) *FilesClient {
	return &FilesClient{base: newBase("files", cfg, hc)}
}

type uploadResponse struct {
	Data domain.Pointer `json:"data"`
}

// Upload streams content to the relay as a multipart form (fields "caption"
// and "file") and returns the pointer to the stored message.
func (c *FilesClient) Upload(ctx context.Context, content io.Reader, filename, caption string) (domain.Pointer, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			if err := mw.WriteField("caption", caption); err != nil {
				return err
			}
			part, err := mw.CreateFormFile("file", filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, content); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/files/upload/", nil, pr)
	if err != nil {
		pr.CloseWithError(err)
		return domain.Pointer{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		pr.CloseWithError(err)
		return domain.Pointer{}, err
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Pointer{}, fmt.Errorf("%s: decode upload response: %w", c.service, err)
	}
	if out.Data.MessageID == 0 {
		return domain.Pointer{}, fmt.Errorf("%s: upload response has no message id", c.service)
	}
	return out.Data, nil
}

// Download streams the payload referenced by ptr. A failure here usually
// means the pointer is stale.
func (c *FilesClient) Download(ctx context.Context, ptr domain.Pointer) (io.ReadCloser, error) {
	path := fmt.Sprintf("/api/v1/files/download_by_message/%d/%d", ptr.ChatID, ptr.MessageID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
