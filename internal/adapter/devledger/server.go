// Package devledger is an in-memory ledger simulator for development and
// integration testing. It implements the wallet backend directly and exposes
// the mapping-query, transaction-trace and invoice-index HTTP APIs the
// engine's clients consume, with the same transition semantics the real
// programs enforce.
package devledger

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zkinvoice/config"
	"zkinvoice/internal/adapter/ledger"
	"zkinvoice/internal/core/domain"
	"zkinvoice/internal/core/ports"
	"zkinvoice/internal/crypto"
)

type txState struct {
	final ports.TransactionTrace
	polls int
}

// Ledger is the simulator state. Safe for concurrent use.
type Ledger struct {
	proto config.Protocol
	log   zerolog.Logger

	// confirmAfter is how many status polls a transaction stays pending
	// before its final status is reported. Zero resolves immediately.
	confirmAfter int

	mu       sync.Mutex
	mappings map[string]string
	txs      map[string]*txState
	invoices map[string]ports.InvoiceMetadata
}

// NewLedger creates a simulator with an empty freeze registry: the registry
// root mapping is seeded with the all-empty tree root.
func NewLedger(proto config.Protocol, log zerolog.Logger) *Ledger {
	l := &Ledger{
		proto:        proto,
		log:          log,
		confirmAfter: 1,
		mappings:     make(map[string]string),
		txs:          make(map[string]*txState),
		invoices:     make(map[string]ports.InvoiceMetadata),
	}
	root := crypto.EmptyRoot()
	l.mappings[l.key(proto.TokenProgram, proto.RegistryMapping, proto.RegistryRootKey)] = crypto.FieldInput(root)
	return l
}

// SetConfirmAfter adjusts how many polls precede confirmation.
func (l *Ledger) SetConfirmAfter(polls int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmAfter = polls
}

// SetFrozenLeaf populates the registry's first slot and recomputes the root,
// as the compliance authority would after freezing an address.
func (l *Ledger) SetFrozenLeaf(value crypto.FieldElement) error {
	proof, err := crypto.BuildFreezeProof(0, nil)
	if err != nil {
		return err
	}
	root := crypto.FoldProof(value, proof)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.mappings[l.key(l.proto.TokenProgram, l.proto.RegistryMapping, "0")] = crypto.FieldInput(value)
	l.mappings[l.key(l.proto.TokenProgram, l.proto.RegistryMapping, l.proto.RegistryRootKey)] = crypto.FieldInput(root)
	return nil
}

func (l *Ledger) key(program, mapping, mapKey string) string {
	return program + "/" + mapping + "/" + mapKey
}

// Submit validates and applies a transition, recording its final trace. The
// trace stays pending for confirmAfter polls.
func (l *Ledger) Submit(ctx context.Context, caller string, req ports.ExecuteRequest) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	txID := "tx-" + uuid.NewString()
	outputs, rejectReason := l.applyLocked(caller, req)

	status := ports.TxConfirmed
	if rejectReason != "" {
		status = ports.TxRejected
		l.log.Info().Str("tx_id", txID).Str("function", req.Function).Str("reason", rejectReason).Msg("transition rejected")
	} else {
		l.log.Info().Str("tx_id", txID).Str("function", req.Function).Msg("transition accepted")
	}

	l.txs[txID] = &txState{final: ports.TransactionTrace{ID: txID, Status: status, Outputs: outputs}}
	return txID, nil
}

// applyLocked runs a transition's semantics. A non-empty reject reason means
// no state was mutated.
func (l *Ledger) applyLocked(caller string, req ports.ExecuteRequest) (outputs []string, rejectReason string) {
	switch {
	case req.ProgramID == l.proto.InvoiceProgram && req.Function == l.proto.CreateFunction:
		return l.applyCreateLocked(req.Inputs)
	case req.ProgramID == l.proto.InvoiceProgram &&
		(req.Function == l.proto.PayFunction || req.Function == l.proto.PayStableFunction):
		return l.applyPayLocked(req.Function, req.Inputs)
	case req.ProgramID == l.proto.CreditsProgram && req.Function == l.proto.ConvertFunction:
		if len(req.Inputs) < 2 {
			return nil, "conversion expects 2 inputs"
		}
		return nil, ""
	default:
		return nil, fmt.Sprintf("unknown transition %s/%s", req.ProgramID, req.Function)
	}
}

func (l *Ledger) applyCreateLocked(inputs []string) ([]string, string) {
	if len(inputs) != 5 {
		return nil, fmt.Sprintf("creation expects 5 inputs, got %d", len(inputs))
	}
	salt, err := crypto.ParseField(inputs[0])
	if err != nil {
		return nil, "invalid salt input"
	}
	commitment, err := crypto.ParseField(inputs[1])
	if err != nil {
		return nil, "invalid commitment input"
	}
	kind, ok := parseKindCode(inputs[3])
	if !ok {
		return nil, "invalid kind input"
	}
	asset, ok := parseAssetCode(inputs[4])
	if !ok {
		return nil, "invalid asset input"
	}

	saltKey := l.key(l.proto.InvoiceProgram, l.proto.InvoiceMapping, salt.String())
	if _, exists := l.mappings[saltKey]; exists {
		return nil, "invoice salt already registered"
	}

	l.mappings[saltKey] = crypto.FieldInput(commitment)
	l.mappings[l.key(l.proto.InvoiceProgram, l.proto.StatusMapping, commitment.String())] =
		domain.FormatStatusEntry(domain.StatusEntry{Status: domain.InvoiceOpen, Kind: kind, Asset: asset})
	return []string{crypto.FieldInput(commitment)}, ""
}

func (l *Ledger) applyPayLocked(function string, inputs []string) ([]string, string) {
	if len(inputs) < 4 {
		return nil, fmt.Sprintf("payment expects at least 4 inputs, got %d", len(inputs))
	}
	commitment, err := crypto.ParseField(inputs[1])
	if err != nil {
		return nil, "invalid commitment input"
	}
	receipt, err := crypto.ParseField(inputs[2])
	if err != nil {
		return nil, "invalid receipt input"
	}
	if function == l.proto.PayStableFunction && len(inputs) < 6 {
		return nil, "stable payment requires a compliance proof pair"
	}

	statusKey := l.key(l.proto.InvoiceProgram, l.proto.StatusMapping, commitment.String())
	raw, exists := l.mappings[statusKey]
	if !exists {
		return nil, "unknown invoice commitment"
	}
	entry, err := domain.ParseStatusEntry(raw)
	if err != nil {
		return nil, "corrupt status entry"
	}
	if entry.Status == domain.InvoiceSettled {
		return nil, "invoice already settled"
	}

	if !entry.Kind.Repeatable() {
		entry.Status = domain.InvoiceSettled
		l.mappings[statusKey] = domain.FormatStatusEntry(entry)
	}
	return []string{crypto.FieldInput(commitment), crypto.FieldInput(receipt)}, ""
}

// Status reports a transaction's trace, advancing its pending window by one
// poll.
func (l *Ledger) Status(ctx context.Context, txID string) (*ports.TransactionTrace, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	trace, ok := l.statusLocked(txID)
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", txID)
	}
	return &trace, nil
}

func (l *Ledger) statusLocked(txID string) (ports.TransactionTrace, bool) {
	st, ok := l.txs[txID]
	if !ok {
		return ports.TransactionTrace{}, false
	}
	if st.polls < l.confirmAfter {
		st.polls++
		return ports.TransactionTrace{ID: txID, Status: ports.TxPending}, true
	}
	return st.final, true
}

// Router builds the HTTP surface: the ledger query API plus the invoice
// index API, on one listener.
func (l *Ledger) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/program/:program/mapping/:mapping/:key", l.handleMapping)
	r.GET("/transaction/:id", l.handleTransaction)
	r.POST("/transaction", l.handleSubmit)

	r.GET("/invoice/:commitment", l.handleGetInvoice)
	r.POST("/invoice", l.handleRegisterInvoice)
	r.POST("/invoice/:commitment/settle", l.handleSettleInvoice)

	return r
}

func (l *Ledger) handleMapping(c *gin.Context) {
	l.mu.Lock()
	value, ok := l.mappings[l.key(c.Param("program"), c.Param("mapping"), c.Param("key"))]
	l.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "mapping key not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": value})
}

// submitRequest is the wire form of a transition submission.
type submitRequest struct {
	Caller    string   `json:"caller"`
	ProgramID string   `json:"program_id" binding:"required"`
	Function  string   `json:"function" binding:"required"`
	Inputs    []string `json:"inputs"`
	FeeMicro  uint64   `json:"fee_micro"`
}

func (l *Ledger) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	txID, err := l.Submit(c.Request.Context(), req.Caller, ports.ExecuteRequest{
		ProgramID: req.ProgramID,
		Function:  req.Function,
		Inputs:    req.Inputs,
		FeeMicro:  req.FeeMicro,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": txID})
}

func (l *Ledger) handleTransaction(c *gin.Context) {
	l.mu.Lock()
	trace, ok := l.statusLocked(c.Param("id"))
	l.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      trace.ID,
		"status":  ledger.FormatStatus(trace.Status),
		"outputs": trace.Outputs,
	})
}

func (l *Ledger) handleGetInvoice(c *gin.Context) {
	l.mu.Lock()
	meta, ok := l.invoices[c.Param("commitment")]
	l.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (l *Ledger) handleRegisterInvoice(c *gin.Context) {
	var meta ports.InvoiceMetadata
	if err := c.ShouldBindJSON(&meta); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if meta.Commitment == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "commitment is required"})
		return
	}
	l.mu.Lock()
	l.invoices[meta.Commitment] = meta
	l.mu.Unlock()
	c.JSON(http.StatusCreated, gin.H{"commitment": meta.Commitment})
}

func (l *Ledger) handleSettleInvoice(c *gin.Context) {
	var update ports.SettlementUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	commitment := c.Param("commitment")

	l.mu.Lock()
	meta, ok := l.invoices[commitment]
	if ok {
		meta.Payer = update.Payer
		meta.PaymentTxIDs = append(meta.PaymentTxIDs, update.PaymentTxID)
		if !update.Repeatable {
			meta.Status = domain.InvoiceSettled
		}
		l.invoices[commitment] = meta
	}
	l.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"commitment": commitment})
}

func parseKindCode(s string) (domain.InvoiceKind, bool) {
	switch strings.TrimSuffix(s, "u8") {
	case "0":
		return domain.InvoiceStandard, true
	case "1":
		return domain.InvoiceMultiPay, true
	case "2":
		return domain.InvoiceDonation, true
	default:
		return "", false
	}
}

func parseAssetCode(s string) (domain.AssetKind, bool) {
	switch strings.TrimSuffix(s, "u8") {
	case "0":
		return domain.AssetPrimary, true
	case "1":
		return domain.AssetWrappedStable, true
	default:
		return "", false
	}
}
