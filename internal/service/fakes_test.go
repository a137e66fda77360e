package service

import (
	"context"
	"fmt"
	"sync"

	"zkinvoice/config"
	"zkinvoice/internal/core/domain"
	"zkinvoice/internal/core/ports"
	"zkinvoice/internal/crypto"
)

func protoForTest() config.Protocol {
	return config.Protocol{
		InvoiceProgram:    "zk_invoice_v2",
		CreditsProgram:    "credits",
		TokenProgram:      "stable_token_v1",
		InvoiceMapping:    "invoices",
		StatusMapping:     "invoice_status",
		RegistryMapping:   "freeze_registry",
		RegistryRootKey:   "root",
		CreateFunction:    "create_invoice",
		PayFunction:       "pay_invoice",
		PayStableFunction: "pay_invoice_stable",
		ConvertFunction:   "transfer_public_to_private",
		FeeMicro:          50_000,
		ConversionBuffer:  10_000,
	}
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{Interval: 0, MaxAttempts: 5}
}

// fakeWallet is a scriptable connector. Decrypt is the identity by default so
// tests can store plaintexts directly as ciphertexts.
type fakeWallet struct {
	mu sync.Mutex

	address    string
	addressErr error

	records    map[string][]domain.RecordCiphertext
	decryptFn  func(ciphertext string) (string, error)
	executeFn  func(req ports.ExecuteRequest) (string, error)
	statusFn   func(txID string) (*ports.TransactionTrace, error)
	historyFn  func(txID string) (*ports.TransactionTrace, error)
	executions []ports.ExecuteRequest
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{
		address: "pz1payer",
		records: make(map[string][]domain.RecordCiphertext),
	}
}

func (w *fakeWallet) Address(ctx context.Context) (string, error) {
	return w.address, w.addressErr
}

func (w *fakeWallet) Execute(ctx context.Context, req ports.ExecuteRequest) (string, error) {
	w.mu.Lock()
	w.executions = append(w.executions, req)
	w.mu.Unlock()
	if w.executeFn != nil {
		return w.executeFn(req)
	}
	return "tx-1", nil
}

func (w *fakeWallet) Status(ctx context.Context, txID string) (*ports.TransactionTrace, error) {
	if w.statusFn != nil {
		return w.statusFn(txID)
	}
	return &ports.TransactionTrace{ID: txID, Status: ports.TxConfirmed}, nil
}

func (w *fakeWallet) Records(ctx context.Context, programID string) ([]domain.RecordCiphertext, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.RecordCiphertext(nil), w.records[programID]...), nil
}

func (w *fakeWallet) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if w.decryptFn != nil {
		return w.decryptFn(ciphertext)
	}
	return ciphertext, nil
}

func (w *fakeWallet) History(ctx context.Context, txID string) (*ports.TransactionTrace, error) {
	if w.historyFn != nil {
		return w.historyFn(txID)
	}
	return nil, fmt.Errorf("no history for %s", txID)
}

func (w *fakeWallet) executed() []ports.ExecuteRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ports.ExecuteRequest(nil), w.executions...)
}

// fakeLedger serves mapping values from a flat key space.
type fakeLedger struct {
	mappings map[string]string
	traceFn  func(txID string) (*ports.TransactionTrace, error)
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{mappings: make(map[string]string)}
}

func (l *fakeLedger) set(program, mapping, key, value string) {
	l.mappings[program+"/"+mapping+"/"+key] = value
}

func (l *fakeLedger) MappingValue(ctx context.Context, programID, mapping, key string) (string, bool, error) {
	v, ok := l.mappings[programID+"/"+mapping+"/"+key]
	return v, ok, nil
}

func (l *fakeLedger) TransactionTrace(ctx context.Context, txID string) (*ports.TransactionTrace, error) {
	if l.traceFn != nil {
		return l.traceFn(txID)
	}
	return nil, fmt.Errorf("trace unavailable for %s", txID)
}

// fakeIndex records bookkeeping calls.
type fakeIndex struct {
	mu          sync.Mutex
	getErr      error
	registerErr error
	settleErr   error
	registered  []ports.InvoiceMetadata
	settled     []string
	updates     []ports.SettlementUpdate
}

func (i *fakeIndex) Get(ctx context.Context, commitment string) (*ports.InvoiceMetadata, error) {
	return nil, i.getErr
}

func (i *fakeIndex) Register(ctx context.Context, meta ports.InvoiceMetadata) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.registerErr != nil {
		return i.registerErr
	}
	i.registered = append(i.registered, meta)
	return nil
}

func (i *fakeIndex) MarkSettled(ctx context.Context, commitment string, update ports.SettlementUpdate) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.settleErr != nil {
		return i.settleErr
	}
	i.settled = append(i.settled, commitment)
	i.updates = append(i.updates, update)
	return nil
}

// fakeSelector returns scripted results in sequence, repeating the last one.
type fakeSelector struct {
	results []selectorResult
	calls   int
}

type selectorResult struct {
	record *domain.BalanceRecord
	err    error
}

func (s *fakeSelector) Select(ctx context.Context, asset domain.AssetKind, amount uint64) (*domain.BalanceRecord, error) {
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	r := s.results[idx]
	return r.record, r.err
}

// fakeProofBuilder hands out empty-registry proofs.
type fakeProofBuilder struct {
	err   error
	built []uint32
}

func (b *fakeProofBuilder) Build(ctx context.Context, leafIndex uint32) (*crypto.FreezeListProof, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.built = append(b.built, leafIndex)
	proof, err := crypto.BuildFreezeProof(leafIndex, nil)
	if err != nil {
		return nil, err
	}
	return &proof, nil
}

// stubResolver is one fixed hash-resolution strategy outcome.
type stubResolver struct {
	name   string
	hash   string
	ok     bool
	err    error
	called int
}

func (r *stubResolver) Name() string { return r.name }

func (r *stubResolver) Resolve(ctx context.Context, txID string) (string, bool, error) {
	r.called++
	return r.hash, r.ok, r.err
}
