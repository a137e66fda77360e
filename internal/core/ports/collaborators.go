// Package ports declares the interfaces between the payment engine and its
// external collaborators: the ledger query endpoint, the wallet connector and
// the off-chain invoice index. The engine never talks to the network except
// through these.
package ports

import (
	"context"

	"zkinvoice/internal/core/domain"
)

// TransactionStatus is the confirmation state reported for a transaction.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxConfirmed TransactionStatus = "CONFIRMED"
	TxRejected  TransactionStatus = "REJECTED"
	TxUnknown   TransactionStatus = "UNKNOWN"
)

// TransactionTrace is the execution trace of a submitted transaction,
// including any transition outputs the source surfaces.
type TransactionTrace struct {
	ID      string // confirmed identifier once available, else transient
	Status  TransactionStatus
	Outputs []string
}

// LedgerQuery resolves public on-chain state. "Not found" is a normal,
// non-exceptional outcome for mapping lookups.
type LedgerQuery interface {
	// MappingValue resolves a named mapping's value for a key.
	MappingValue(ctx context.Context, programID, mapping, key string) (value string, found bool, err error)
	// TransactionTrace returns the execution trace for a transaction. Used by
	// the explorer fallback of hash resolution.
	TransactionTrace(ctx context.Context, txID string) (*TransactionTrace, error)
}

// ExecuteRequest describes one transition submission.
type ExecuteRequest struct {
	ProgramID string
	Function  string
	Inputs    []string // ordered
	FeeMicro  uint64
}

// WalletConnector is the capability holding the user's keys. All operations
// may fail with connector-specific errors (user rejection, permission denial,
// disconnection) which the controller surfaces verbatim.
type WalletConnector interface {
	// Address returns the connected identity.
	Address(ctx context.Context) (string, error)
	// Execute submits a transition and returns a transient transaction ID.
	Execute(ctx context.Context, req ExecuteRequest) (string, error)
	// Status polls a transaction by identifier.
	Status(ctx context.Context, txID string) (*TransactionTrace, error)
	// Records lists the user's record ciphertexts for a program.
	Records(ctx context.Context, programID string) ([]domain.RecordCiphertext, error)
	// Decrypt decrypts one record ciphertext to its plaintext form.
	Decrypt(ctx context.Context, ciphertext string) (string, error)
	// History returns the wallet's stored execution trace for a transaction.
	// Optional capability; connectors without it return a missing-capability
	// error.
	History(ctx context.Context, txID string) (*TransactionTrace, error)
}

// InvoiceMetadata is the off-chain index entry for an invoice. The index is a
// cache: best-effort, never authoritative.
type InvoiceMetadata struct {
	Commitment        string               `json:"commitment"`
	EncryptedMerchant string               `json:"encrypted_merchant"`
	Kind              domain.InvoiceKind   `json:"kind"`
	Asset             domain.AssetKind     `json:"asset"`
	Status            domain.InvoiceStatus `json:"status"`
	Memo              string               `json:"memo,omitempty"`
	Payer             string               `json:"payer,omitempty"`
	PaymentTxIDs      []string             `json:"payment_tx_ids,omitempty"`
}

// SettlementUpdate records a confirmed payment against an index entry.
type SettlementUpdate struct {
	PaymentTxID string `json:"payment_tx_id"`
	Payer       string `json:"payer"`
	// Repeatable invoices keep their Open status after the update.
	Repeatable bool `json:"repeatable"`
}

// InvoiceIndex is the off-chain metadata index collaborator.
type InvoiceIndex interface {
	Get(ctx context.Context, commitment string) (*InvoiceMetadata, error)
	Register(ctx context.Context, meta InvoiceMetadata) error
	MarkSettled(ctx context.Context, commitment string, update SettlementUpdate) error
}
