// Package backend is the REST client for the remote configuration store.
//
// Every call maps "nothing there" to a false found flag rather than an error:
// the backend answers a missing record with 404 or with an empty body, and
// callers fall back to defaults in both cases. Transport failures and other
// non-2xx statuses are returned as errors.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/small-frappuccino/plana/pkg/errutil"
	"github.com/small-frappuccino/plana/pkg/log"
)

// APIKeyHeader carries the static credential on every request.
const APIKeyHeader = "Plana-API-Key"

const maxErrorBody = 512

// StatusError is returned for unexpected HTTP statuses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to the backend. It holds no per-entity state and is safe for
// concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs one request. When out is non-nil and the response carries a
// record, the body is decoded into out and found is true.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (found bool, err error) {
	err = errutil.HandleBackendError(strings.ToLower(method), path, func() error {
		var rerr error
		found, rerr = c.roundTrip(ctx, method, path, body, out)
		return rerr
	})
	return found, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out any) (bool, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(APIKeyHeader, c.apiKey)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}
	log.BackendLogger().Debug("Backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return false, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: snippet}
	}

	if isEmpty(data) {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
	}
	return true, nil
}

func isEmpty(data []byte) bool {
	switch string(bytes.TrimSpace(data)) {
	case "", "null", "{}", "[]", "false", `""`:
		return true
	}
	return false
}

// listEnvelope is the shape of collection responses.
type listEnvelope[T any] struct {
	Data []T `json:"data"`
}
