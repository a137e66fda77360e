// Package index implements the HTTP client for the off-chain invoice
// metadata index. The index is a cache, never authoritative; callers treat
// every failure here as best-effort.
package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"zkinvoice/internal/core/ports"
	"zkinvoice/pkg/apperror"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the invoice index over its REST-like API.
type Client struct {
	base string
	http HTTPClient
	log  zerolog.Logger
}

var _ ports.InvoiceIndex = (*Client)(nil)

// NewClient creates an index client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{base: baseURL, http: &http.Client{Timeout: timeout}, log: log}
}

// NewClientWithHTTP injects a custom HTTP client (tests).
func NewClientWithHTTP(baseURL string, httpClient HTTPClient, log zerolog.Logger) *Client {
	return &Client{base: baseURL, http: httpClient, log: log}
}

// Get fetches invoice metadata by commitment hash. A missing entry returns
// (nil, nil): absence from a cache is normal.
func (c *Client) Get(ctx context.Context, commitment string) (*ports.InvoiceMetadata, error) {
	endpoint := fmt.Sprintf("%s/invoice/%s", c.base, url.PathEscape(commitment))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperror.ErrTransient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, apperror.ErrTransient(fmt.Errorf("index responded %d", resp.StatusCode))
	}

	var meta ports.InvoiceMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("decoding index response: %w", err))
	}
	return &meta, nil
}

// Register stores metadata for a freshly created invoice.
func (c *Client) Register(ctx context.Context, meta ports.InvoiceMetadata) error {
	return c.postJSON(ctx, c.base+"/invoice", meta)
}

// MarkSettled records a confirmed payment against an index entry.
func (c *Client) MarkSettled(ctx context.Context, commitment string, update ports.SettlementUpdate) error {
	endpoint := fmt.Sprintf("%s/invoice/%s/settle", c.base, url.PathEscape(commitment))
	return c.postJSON(ctx, endpoint, update)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.ErrTransient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperror.ErrTransient(fmt.Errorf("index responded %d for %s", resp.StatusCode, endpoint))
	}
	return nil
}
