// Package wallet provides a local software wallet implementing the connector
// port. It holds a key, stores records as authenticated ciphertexts and
// submits transitions to a ledger backend. Intended for development and
// integration testing; production deployments use a browser or hardware
// connector instead.
package wallet

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"

	"zkinvoice/config"
	"zkinvoice/internal/core/domain"
	"zkinvoice/internal/core/ports"
	"zkinvoice/pkg/apperror"
)

// Backend executes transitions and reports their status. The devledger
// simulator implements it in-process.
type Backend interface {
	Submit(ctx context.Context, caller string, req ports.ExecuteRequest) (string, error)
	Status(ctx context.Context, txID string) (*ports.TransactionTrace, error)
}

type storedRecord struct {
	program    string
	ciphertext string
}

type pendingOp struct {
	program  string
	function string
	inputs   []string
	applied  bool
}

// LocalWallet implements ports.WalletConnector.
type LocalWallet struct {
	proto          config.Protocol
	backend        Backend
	aead           cipher.AEAD
	address        string
	historyEnabled bool

	mu      sync.Mutex
	records map[string]storedRecord // record ID -> ciphertext
	pending map[string]*pendingOp   // tx ID -> submitted op
	history map[string]ports.TransactionTrace
}

var _ ports.WalletConnector = (*LocalWallet)(nil)

// New creates a local wallet from a 32-byte hex key.
func New(keyHex string, proto config.Protocol, backend Backend) (*LocalWallet, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decoding wallet key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("wallet key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("initializing record cipher: %w", err)
	}

	digest := sha256.Sum256(key)
	return &LocalWallet{
		proto:          proto,
		backend:        backend,
		aead:           aead,
		address:        "pz1" + hex.EncodeToString(digest[:20]),
		historyEnabled: true,
		records:        make(map[string]storedRecord),
		pending:        make(map[string]*pendingOp),
		history:        make(map[string]ports.TransactionTrace),
	}, nil
}

// SetHistoryEnabled toggles the optional transaction-history capability.
func (w *LocalWallet) SetHistoryEnabled(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.historyEnabled = enabled
}

// Address returns the connected identity.
func (w *LocalWallet) Address(ctx context.Context) (string, error) {
	return w.address, nil
}

// Execute submits a transition through the backend and tracks it so record
// side effects can be applied once it confirms.
func (w *LocalWallet) Execute(ctx context.Context, req ports.ExecuteRequest) (string, error) {
	txID, err := w.backend.Submit(ctx, w.address, req)
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	w.pending[txID] = &pendingOp{program: req.ProgramID, function: req.Function, inputs: req.Inputs}
	w.mu.Unlock()
	return txID, nil
}

// Status polls the backend and, on first confirmation, applies the
// transition's record effects: spending inputs, minting change and receipts.
// This mirrors a real wallet scanning the chain for its new records.
func (w *LocalWallet) Status(ctx context.Context, txID string) (*ports.TransactionTrace, error) {
	trace, err := w.backend.Status(ctx, txID)
	if err != nil {
		return nil, err
	}
	if trace.Status == ports.TxConfirmed {
		w.mu.Lock()
		if op, ok := w.pending[txID]; ok && !op.applied {
			if err := w.applyLocked(op); err != nil {
				w.mu.Unlock()
				return nil, err
			}
			op.applied = true
			w.history[txID] = *trace
		}
		w.mu.Unlock()
	}
	return trace, nil
}

// Records lists the wallet's record ciphertexts for a program.
func (w *LocalWallet) Records(ctx context.Context, programID string) ([]domain.RecordCiphertext, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.RecordCiphertext, 0, len(w.records))
	for id, rec := range w.records {
		if rec.program == programID {
			out = append(out, domain.RecordCiphertext{ID: id, Ciphertext: rec.ciphertext})
		}
	}
	return out, nil
}

// Decrypt opens one record ciphertext.
func (w *LocalWallet) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding record ciphertext: %w", err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("record ciphertext too short")
	}
	nonce, sealed := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plain, err := w.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("opening record ciphertext: %w", err)
	}
	return string(plain), nil
}

// History returns the wallet's stored trace for a confirmed transaction.
func (w *LocalWallet) History(ctx context.Context, txID string) (*ports.TransactionTrace, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.historyEnabled {
		return nil, apperror.ErrPermissionDenied(fmt.Errorf("history capability disabled"))
	}
	trace, ok := w.history[txID]
	if !ok {
		return nil, fmt.Errorf("no history entry for transaction %s", txID)
	}
	return &trace, nil
}

// MintRecord seeds the wallet with a fresh private balance record. Used to
// set up development and test scenarios.
func (w *LocalWallet) MintRecord(amount uint64, asset domain.AssetKind) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mintLocked(amount, asset)
}

func (w *LocalWallet) mintLocked(amount uint64, asset domain.AssetKind) (string, error) {
	plaintext := fmt.Sprintf("balance { owner: %s, amount: %du64, asset: %s, spent: false }",
		w.address, amount, domain.AssetCode(asset))
	return w.storeLocked(w.programFor(asset), plaintext)
}

func (w *LocalWallet) storeLocked(program, plaintext string) (string, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating record nonce: %w", err)
	}
	sealed := w.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	id := uuid.NewString()
	w.records[id] = storedRecord{
		program:    program,
		ciphertext: base64.StdEncoding.EncodeToString(sealed),
	}
	return id, nil
}

func (w *LocalWallet) programFor(asset domain.AssetKind) string {
	if asset == domain.AssetWrappedStable {
		return w.proto.TokenProgram
	}
	return w.proto.CreditsProgram
}

// applyLocked applies a confirmed transition's effects to the record set.
func (w *LocalWallet) applyLocked(op *pendingOp) error {
	switch op.function {
	case w.proto.ConvertFunction:
		if len(op.inputs) < 2 {
			return fmt.Errorf("conversion expects 2 inputs, got %d", len(op.inputs))
		}
		amount, err := parseMicroAmount(op.inputs[1])
		if err != nil {
			return err
		}
		_, err = w.mintLocked(amount, domain.AssetPrimary)
		return err

	case w.proto.PayFunction, w.proto.PayStableFunction:
		if len(op.inputs) < 4 {
			return fmt.Errorf("payment expects at least 4 inputs, got %d", len(op.inputs))
		}
		return w.spendLocked(op.inputs[0], op.inputs[2], op.inputs[3])

	default:
		return nil
	}
}

// spendLocked consumes the input record, minting a change record and the
// payer-side receipt.
func (w *LocalWallet) spendLocked(recordID, receiptInput, amountInput string) error {
	rec, ok := w.records[recordID]
	if !ok {
		return fmt.Errorf("spent record %s not found in wallet", recordID)
	}
	plaintext, err := w.decryptStored(rec)
	if err != nil {
		return err
	}
	parsed, err := domain.ParseRecordPlaintext(plaintext)
	if err != nil {
		return err
	}
	balance, ok := parsed.(domain.BalanceRecord)
	if !ok {
		return fmt.Errorf("record %s is not a balance record", recordID)
	}

	paid, err := parseMicroAmount(amountInput)
	if err != nil {
		return err
	}
	if balance.Amount <= paid {
		return fmt.Errorf("record value %d does not exceed payment %d", balance.Amount, paid)
	}

	delete(w.records, recordID)
	if _, err := w.mintLocked(balance.Amount-paid, balance.Asset); err != nil {
		return err
	}

	receipt := fmt.Sprintf("payer_receipt { owner: %s, commitment: %s, amount: %du64 }",
		w.address, receiptInput, paid)
	_, err = w.storeLocked(w.proto.InvoiceProgram, receipt)
	return err
}

func (w *LocalWallet) decryptStored(rec storedRecord) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(rec.ciphertext)
	if err != nil {
		return "", err
	}
	nonce, sealed := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plain, err := w.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func parseMicroAmount(input string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSuffix(input, "u64"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid micro amount %q", input)
	}
	return n, nil
}
