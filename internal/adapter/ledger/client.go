// Package ledger implements the read-only HTTP client for the ledger's
// mapping-query and transaction-trace endpoints.
package ledger

import (
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

// Client queries a ledger node (or explorer) over HTTP.
type Client struct {
	base string
	http HTTPClient
	log  zerolog.Logger
}

var _ ports.LedgerQuery = (*Client)(nil)

// NewClient creates a ledger query client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// NewClientWithHTTP injects a custom HTTP client (tests).
func NewClientWithHTTP(baseURL string, httpClient HTTPClient, log zerolog.Logger) *Client {
	return &Client{base: baseURL, http: httpClient, log: log}
}

type mappingResponse struct {
	Value string `json:"value"`
}

// MappingValue resolves a named mapping's value for a key. A 404 is a
// normal "not found" outcome, not an error.
func (c *Client) MappingValue(ctx context.Context, programID, mapping, key string) (string, bool, error) {
	endpoint := fmt.Sprintf("%s/program/%s/mapping/%s/%s",
		c.base, url.PathEscape(programID), url.PathEscape(mapping), url.PathEscape(key))

	var out mappingResponse
	found, err := c.getJSON(ctx, endpoint, &out)
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}
	return out.Value, true, nil
}

type traceResponse struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Outputs []string `json:"outputs"`
}

// TransactionTrace returns the execution trace for a transaction. A 404 is
// transient here: the transaction may not have propagated yet.
func (c *Client) TransactionTrace(ctx context.Context, txID string) (*ports.TransactionTrace, error) {
	endpoint := fmt.Sprintf("%s/transaction/%s", c.base, url.PathEscape(txID))

	var out traceResponse
	found, err := c.getJSON(ctx, endpoint, &out)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.ErrTransient(fmt.Errorf("transaction %s not yet visible", txID))
	}
	return &ports.TransactionTrace{
		ID:      out.ID,
		Status:  parseStatus(out.Status),
		Outputs: out.Outputs,
	}, nil
}

// getJSON performs a GET and decodes the body. Returns found=false on 404.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, apperror.ErrTransient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, apperror.ErrTransient(fmt.Errorf("ledger responded %d for %s", resp.StatusCode, endpoint))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, apperror.ErrTransient(fmt.Errorf("decoding ledger response: %w", err))
	}
	return true, nil
}

func parseStatus(s string) ports.TransactionStatus {
	switch s {
	case "confirmed":
		return ports.TxConfirmed
	case "rejected":
		return ports.TxRejected
	case "pending":
		return ports.TxPending
	default:
		return ports.TxUnknown
	}
}

// FormatStatus is the inverse of parseStatus, shared with the devledger
// simulator so both sides agree on the wire values.
func FormatStatus(s ports.TransactionStatus) string {
	switch s {
	case ports.TxConfirmed:
		return "confirmed"
	case ports.TxRejected:
		return "rejected"
	case ports.TxPending:
		return "pending"
	default:
		return "unknown"
	}
}
