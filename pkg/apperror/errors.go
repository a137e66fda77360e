package apperror

import (
	"errors"
	"fmt"
)

// Category classifies an error for routing decisions in the payment flow:
// retry, abort, fallback, or log-and-continue.
type Category string

const (
	// CategoryInvalidInvoice covers commitment mismatches and missing
	// mappings. Fatal, never retried.
	CategoryInvalidInvoice Category = "INVALID_INVOICE"
	// CategoryBalance covers insufficient or fragmented private balances.
	// Routes to the conversion flow when the asset supports it.
	CategoryBalance Category = "BALANCE"
	// CategoryWallet covers connector failures: user rejection, permission
	// denial, missing capability, disconnection. Surfaced verbatim.
	CategoryWallet Category = "WALLET"
	// CategoryTransient covers network errors swallowed inside the bounded
	// polling window.
	CategoryTransient Category = "TRANSIENT"
	// CategoryTimeout is raised when the polling window is exhausted.
	// Distinct from rejection; the user may retry.
	CategoryTimeout Category = "TIMEOUT"
	// CategoryRejected is a definitive on-chain rejection.
	CategoryRejected Category = "REJECTED"
	// CategoryHash means the transition output could not be recovered by any
	// resolution strategy. On-chain state may still be correct.
	CategoryHash Category = "HASH"
	// CategoryBookkeeping covers off-chain index update failures. Logged
	// only, never rolled back.
	CategoryBookkeeping Category = "BOOKKEEPING"
)

// AppError is a structured error carrying a stable code, a category for flow
// routing and a retryability hint.
type AppError struct {
	Code      string
	Message   string
	Category  Category
	Retryable bool
	Err       error // wrapped cause, may be nil
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string, category Category, retryable bool) *AppError {
	return &AppError{Code: code, Message: message, Category: category, Retryable: retryable}
}

// Wrap wraps a cause with an AppError.
func Wrap(code, message string, category Category, retryable bool, err error) *AppError {
	return &AppError{Code: code, Message: message, Category: category, Retryable: retryable, Err: err}
}

// CategoryOf returns the category of err, or "" if err is not an AppError.
func CategoryOf(err error) Category {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}

// IsRetryable reports whether err may be retried. Unclassified errors are
// treated as retryable so that raw network failures do not abort a poll.
func IsRetryable(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return true
}

// ---- Invoice verification (INV) ----

func ErrInvoiceNotFound() *AppError {
	return New("INV_001", "no invoice commitment found for salt", CategoryInvalidInvoice, false)
}

func ErrInvoiceMismatch() *AppError {
	return New("INV_002", "recomputed commitment does not match on-chain value", CategoryInvalidInvoice, false)
}

func ErrInvalidLink(err error) *AppError {
	return Wrap("INV_003", "invoice link is malformed", CategoryInvalidInvoice, false, err)
}

// ---- Private balance (BAL) ----

func ErrInsufficientBalance(total, required uint64) *AppError {
	return New("BAL_001",
		fmt.Sprintf("insufficient private balance: have %d, need more than %d", total, required),
		CategoryBalance, false)
}

func ErrFragmentedBalance(total, required uint64) *AppError {
	return New("BAL_002",
		fmt.Sprintf("balance fragmented: total %d covers %d but no single record suffices, consolidation needed", total, required),
		CategoryBalance, false)
}

// ---- Wallet connector (WAL) ----

func ErrUserRejected(err error) *AppError {
	return Wrap("WAL_001", "request rejected in wallet", CategoryWallet, false, err)
}

func ErrPermissionDenied(err error) *AppError {
	return Wrap("WAL_002", "wallet denied permission", CategoryWallet, false, err)
}

func ErrWalletDisconnected(err error) *AppError {
	return Wrap("WAL_003", "wallet disconnected", CategoryWallet, false, err)
}

func ErrMissingCapability(name string) *AppError {
	return New("WAL_004", fmt.Sprintf("wallet does not support %s", name), CategoryWallet, false)
}

// ---- Network & confirmation (NET) ----

func ErrTransient(err error) *AppError {
	return Wrap("NET_001", "transient network failure", CategoryTransient, true, err)
}

func ErrConfirmationTimeout(attempts int) *AppError {
	return New("NET_002",
		fmt.Sprintf("transaction not confirmed after %d polling attempts", attempts),
		CategoryTimeout, true)
}

func ErrTransactionRejected(txID string) *AppError {
	return New("NET_003", fmt.Sprintf("transaction %s rejected by the ledger", txID), CategoryRejected, false)
}

// ---- Hash resolution (HSH) ----

func ErrHashUnrecoverable(txID string) *AppError {
	return New("HSH_001",
		fmt.Sprintf("output hash of transaction %s unrecoverable by any strategy; the transition may still have succeeded on-chain", txID),
		CategoryHash, false)
}

// ---- Compliance proof (FRZ) ----

func ErrFreezeRootMismatch() *AppError {
	return New("FRZ_001", "freeze registry proof does not fold to the on-chain root", CategoryInvalidInvoice, false)
}

// ---- Off-chain bookkeeping (IDX) ----

func ErrBookkeeping(err error) *AppError {
	return Wrap("IDX_001", "off-chain index update failed", CategoryBookkeeping, true, err)
}

// Validation returns a generic invalid-input error.
func Validation(message string) *AppError {
	return New("INV_004", message, CategoryInvalidInvoice, false)
}
