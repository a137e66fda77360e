package integration

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkinvoice/config"
	"zkinvoice/internal/adapter/devledger"
	"zkinvoice/internal/adapter/index"
	"zkinvoice/internal/adapter/ledger"
	"zkinvoice/internal/adapter/wallet"
	"zkinvoice/internal/core/domain"
	"zkinvoice/internal/crypto"
	"zkinvoice/internal/link"
	"zkinvoice/internal/service"
)

const (
	merchantKeyHex = "a0a1a2a3a4a5a6a7a8a9aaabacadaeafb0b1b2b3b4b5b6b7b8b9babbbcbdbebf"
	payerKeyHex    = "101112131415161718191a1b1c1d1e1f202122232425262728292a2b2c2d2e2f"
)

// env wires the full stack against one devledger instance: HTTP clients for
// queries and bookkeeping, local wallets submitting over HTTP.
type env struct {
	proto    config.Protocol
	sim      *devledger.Ledger
	ledger   *ledger.Client
	index    *index.Client
	merchant *wallet.LocalWallet
	payer    *wallet.LocalWallet
	policy   service.RetryPolicy
}

func defaultProto() config.Protocol {
	cfg, _ := config.Load("")
	if cfg != nil {
		return cfg.Protocol
	}
	return config.Protocol{}
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	proto := defaultProto()
	require.NotEmpty(t, proto.InvoiceProgram)

	sim := devledger.NewLedger(proto, zerolog.Nop())
	sim.SetConfirmAfter(1)
	srv := httptest.NewServer(sim.Router())
	t.Cleanup(srv.Close)

	ledgerClient := ledger.NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	indexClient := index.NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	backend := wallet.NewHTTPBackend(srv.URL, 5*time.Second, ledgerClient)

	merchant, err := wallet.New(merchantKeyHex, proto, backend)
	require.NoError(t, err)
	payer, err := wallet.New(payerKeyHex, proto, backend)
	require.NoError(t, err)

	return &env{
		proto:    proto,
		sim:      sim,
		ledger:   ledgerClient,
		index:    indexClient,
		merchant: merchant,
		payer:    payer,
		policy:   service.RetryPolicy{Interval: 5 * time.Millisecond, MaxAttempts: 50},
	}
}

func (e *env) invoiceService() *service.InvoiceService {
	resolver := service.NewResolverChain(zerolog.Nop(),
		service.DefaultResolvers(e.merchant, e.ledger, 0)...)
	return service.NewInvoiceService(e.proto, e.merchant, e.index, resolver, e.policy, zerolog.Nop())
}

func (e *env) payerController(steps *[]domain.Step) *service.LifecycleController {
	resolver := service.NewResolverChain(zerolog.Nop(),
		service.DefaultResolvers(e.payer, e.ledger, 0)...)
	selector := service.NewSelector(e.proto, e.payer, zerolog.Nop())
	proofs := service.NewFreezeProofService(e.proto, e.ledger, zerolog.Nop())

	var onStep func(domain.Step)
	if steps != nil {
		onStep = func(s domain.Step) { *steps = append(*steps, s) }
	}
	return service.NewLifecycleController(
		e.proto, e.payer, e.ledger, e.index,
		selector, proofs, resolver, e.policy,
		zerolog.Nop(), onStep,
	)
}

func TestEndToEnd_StandardInvoicePrimaryAsset(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	created, err := e.invoiceService().CreateInvoice(ctx, service.CreateInvoiceRequest{
		Amount: 1_500_000,
		Kind:   domain.InvoiceStandard,
		Asset:  domain.AssetPrimary,
		Memo:   "integration order",
	})
	require.NoError(t, err)

	// The link survives a URL round trip.
	params, err := link.Parse(created.Link.Encode("web+zkpay://invoice"))
	require.NoError(t, err)

	_, err = e.payer.MintRecord(2_000_000, domain.AssetPrimary)
	require.NoError(t, err)

	var steps []domain.Step
	outcome, err := e.payerController(&steps).PayInvoice(ctx, service.PayRequest{Link: params})
	require.NoError(t, err)
	require.False(t, outcome.AlreadyPaid)
	assert.Equal(t, []domain.Step{domain.StepConnect, domain.StepVerify, domain.StepPay, domain.StepSuccess}, steps)

	// Receipt is rederivable from the secret and the link salt.
	salt, err := crypto.ParseField(params.Salt)
	require.NoError(t, err)
	rederived := crypto.ReceiptCommitment(outcome.Secret, salt)
	assert.True(t, outcome.Receipt.Equal(&rederived))

	// The payer wallet now holds change and a receipt record.
	change, err := e.payer.Records(ctx, e.proto.CreditsProgram)
	require.NoError(t, err)
	require.Len(t, change, 1)
	receipts, err := e.payer.Records(ctx, e.proto.InvoiceProgram)
	require.NoError(t, err)
	assert.Len(t, receipts, 1)

	// The off-chain index saw the settlement.
	meta, err := e.index.Get(ctx, created.Invoice.Commitment.String())
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, domain.InvoiceSettled, meta.Status)
	assert.Len(t, meta.PaymentTxIDs, 1)

	// Paying the same link again short-circuits without a transition.
	outcome2, err := e.payerController(nil).PayInvoice(ctx, service.PayRequest{Link: params})
	require.NoError(t, err)
	assert.True(t, outcome2.AlreadyPaid)
}

func TestEndToEnd_InsufficientBalanceTriggersConversion(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	created, err := e.invoiceService().CreateInvoice(ctx, service.CreateInvoiceRequest{
		Amount: 1_000_000,
		Kind:   domain.InvoiceStandard,
		Asset:  domain.AssetPrimary,
	})
	require.NoError(t, err)

	// The payer starts with no private records at all; the engine must route
	// through public-to-private conversion.
	var steps []domain.Step
	outcome, err := e.payerController(&steps).PayInvoice(ctx, service.PayRequest{Link: created.Link})
	require.NoError(t, err)
	require.False(t, outcome.AlreadyPaid)
	assert.Contains(t, steps, domain.StepConvert)

	// The conversion minted amount plus buffer; the payment left the change.
	change, err := e.payer.Records(ctx, e.proto.CreditsProgram)
	require.NoError(t, err)
	require.Len(t, change, 1)
	plaintext, err := e.payer.Decrypt(ctx, change[0].Ciphertext)
	require.NoError(t, err)
	parsed, err := domain.ParseRecordPlaintext(plaintext)
	require.NoError(t, err)
	assert.Equal(t, e.proto.ConversionBuffer, parsed.(domain.BalanceRecord).Amount)
}

func TestEndToEnd_WrappedStableWithComplianceProof(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	created, err := e.invoiceService().CreateInvoice(ctx, service.CreateInvoiceRequest{
		Amount: 750_000,
		Kind:   domain.InvoiceStandard,
		Asset:  domain.AssetWrappedStable,
	})
	require.NoError(t, err)
	assert.Equal(t, e.proto.TokenProgram, created.Link.Token)

	_, err = e.payer.MintRecord(1_000_000, domain.AssetWrappedStable)
	require.NoError(t, err)

	outcome, err := e.payerController(nil).PayInvoice(ctx, service.PayRequest{Link: created.Link})
	require.NoError(t, err)
	assert.False(t, outcome.AlreadyPaid)
	assert.NotEmpty(t, outcome.ConfirmedID)

	meta, err := e.index.Get(ctx, created.Invoice.Commitment.String())
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, domain.InvoiceSettled, meta.Status)
}

func TestEndToEnd_DonationInvoice(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()

	created, err := e.invoiceService().CreateInvoice(ctx, service.CreateInvoiceRequest{
		Amount: 0,
		Kind:   domain.InvoiceDonation,
		Asset:  domain.AssetPrimary,
	})
	require.NoError(t, err)
	assert.Equal(t, "donation", created.Link.Type)

	_, err = e.payer.MintRecord(500_000, domain.AssetPrimary)
	require.NoError(t, err)

	outcome, err := e.payerController(nil).PayInvoice(ctx, service.PayRequest{
		Link:           created.Link,
		DonationAmount: 250_000,
	})
	require.NoError(t, err)
	require.False(t, outcome.AlreadyPaid)

	// Donations stay open; a second donor can still pay.
	_, err = e.payer.MintRecord(500_000, domain.AssetPrimary)
	require.NoError(t, err)
	outcome2, err := e.payerController(nil).PayInvoice(ctx, service.PayRequest{
		Link:           created.Link,
		DonationAmount: 100_000,
	})
	require.NoError(t, err)
	assert.False(t, outcome2.AlreadyPaid)

	meta, err := e.index.Get(ctx, created.Invoice.Commitment.String())
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, domain.InvoiceOpen, meta.Status)
	assert.Len(t, meta.PaymentTxIDs, 2)
}
