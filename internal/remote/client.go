// Package remote implements the HTTP client for the notebook document store.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/nbformat"
)

// Client talks to a document store. A notebook is addressed by its server
// locator plus id: <server>/notebooks/<id>.
type Client struct {
	http *http.Client
}

// NewClient creates a store client. A nil httpClient gets a default with a
// request timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpClient}
}

// NotebookURL returns the document endpoint for (server, id).
func NotebookURL(server, id string) string {
	return strings.TrimSuffix(server, "/") + "/notebooks/" + url.PathEscape(id)
}

// FetchDocument retrieves and decodes the persisted document.
func (c *Client) FetchDocument(ctx context.Context, server, id string) (*nbformat.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, NotebookURL(server, id), nil)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: get %s/%s: %v: %w", server, id, err, apperr.ErrTransportFailure)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("remote: notebook %s/%s: %w", server, id, apperr.ErrNotFound)
	default:
		return nil, fmt.Errorf("remote: get %s/%s: unexpected status %d", server, id, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: read body: %v: %w", err, apperr.ErrTransportFailure)
	}
	return nbformat.Decode(body)
}

// PutDocument replaces the persisted document and returns the store's status
// code. Interpreting the code is the caller's concern: the store is known to
// occasionally report a correctly-applied write with an unexpected status.
func (c *Client) PutDocument(ctx context.Context, server, id string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, NotebookURL(server, id), bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("remote: put %s/%s: %v: %w", server, id, err, apperr.ErrTransportFailure)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
