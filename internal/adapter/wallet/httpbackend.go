package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"zkinvoice/internal/core/ports"
	"zkinvoice/pkg/apperror"
)

// HTTPBackend submits transitions to a ledger node over HTTP. Status polling
// is delegated to the ledger query client, which already speaks the
// transaction-trace endpoint.
type HTTPBackend struct {
	base   string
	http   *http.Client
	traces ports.LedgerQuery
}

var _ Backend = (*HTTPBackend)(nil)

// NewHTTPBackend creates a backend for the given node base URL.
func NewHTTPBackend(baseURL string, timeout time.Duration, traces ports.LedgerQuery) *HTTPBackend {
	return &HTTPBackend{
		base:   baseURL,
		http:   &http.Client{Timeout: timeout},
		traces: traces,
	}
}

type submitPayload struct {
	Caller    string   `json:"caller"`
	ProgramID string   `json:"program_id"`
	Function  string   `json:"function"`
	Inputs    []string `json:"inputs"`
	FeeMicro  uint64   `json:"fee_micro"`
}

type submitResponse struct {
	ID string `json:"id"`
}

// Submit posts one transition and returns the node-assigned transaction ID.
func (b *HTTPBackend) Submit(ctx context.Context, caller string, req ports.ExecuteRequest) (string, error) {
	body, err := json.Marshal(submitPayload{
		Caller:    caller,
		ProgramID: req.ProgramID,
		Function:  req.Function,
		Inputs:    req.Inputs,
		FeeMicro:  req.FeeMicro,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling submission: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+"/transaction", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(httpReq)
	if err != nil {
		return "", apperror.ErrTransient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", apperror.ErrTransient(fmt.Errorf("ledger responded %d to submission", resp.StatusCode))
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperror.ErrTransient(fmt.Errorf("decoding submission response: %w", err))
	}
	if out.ID == "" {
		return "", fmt.Errorf("ledger returned an empty transaction ID")
	}
	return out.ID, nil
}

// Status resolves the transaction trace through the query client.
func (b *HTTPBackend) Status(ctx context.Context, txID string) (*ports.TransactionTrace, error) {
	return b.traces.TransactionTrace(ctx, txID)
}
