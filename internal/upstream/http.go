// Package upstream contains thin typed HTTP clients for the three services the
// gateway composes: the book library (catalog), the downloader (retrieval
// adapter) and the files relay (blob store). Every client takes its base URL
// and credentials explicitly and shares an OpenTelemetry-instrumented
// transport.
//
// Error semantics:
//   - 404 responses map to ErrNotFound (wrapped with the service name).
//   - Any other non-2xx response yields *StatusError.
//   - Network failures and timeouts are returned wrapped as-is.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrNotFound is returned when an upstream reports the resource as missing.
var ErrNotFound = errors.New("upstream: not found")

// maxErrorBody caps how much of a failed response body is kept for logs.
const maxErrorBody = 512

// StatusError reports an unexpected HTTP status from an upstream service.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Config holds connection settings for one upstream service.
type Config struct {
	BaseURL string        // e.g. "http://library:8080"
	APIKey  string        // sent verbatim in the Authorization header
	Timeout time.Duration // bounds JSON calls and time-to-first-byte of streams
}

// NewHTTPClient builds the shared client. It sets no overall request timeout
// so streamed bodies are not cut mid-transfer; responseHeaderTimeout bounds
// the wait for the first byte instead.
func NewHTTPClient(responseHeaderTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: responseHeaderTimeout,
	}
	return &http.Client{Transport: otelhttp.NewTransport(transport)}
}

// base is embedded by every client.
type base struct {
	service string
	cfg     Config
	hc      *http.Client
}

func newBase(service string, cfg Config, hc *http.Client) base {
	if hc == nil {
		hc = NewHTTPClient(cfg.Timeout)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return base{service: service, cfg: cfg, hc: hc}
}

// newRequest builds an authenticated request for path (relative to BaseURL).
func (b base) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := b.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", b.service, err)
	}
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", b.cfg.APIKey)
	}
	return req, nil
}

// do sends req and returns the response only when its status is 2xx. On any
// other status the body is drained, closed, and converted to an error.
func (b base) do(req *http.Request) (*http.Response, error) {
	resp, err := b.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.service, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%s: %w", b.service, ErrNotFound)
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, &StatusError{
		Service:    b.service,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(msg)),
	}
}

// getJSON performs a bounded GET and decodes the JSON body into out.
func (b base) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}
	req, err := b.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := b.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", b.service, err)
	}
	return nil
}
