package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkinvoice/internal/core/domain"
	"zkinvoice/internal/core/ports"
	"zkinvoice/internal/crypto"
	"zkinvoice/pkg/apperror"
)

type invoiceDeps struct {
	wallet *fakeWallet
	index  *fakeIndex
	svc    *InvoiceService
}

func setupInvoiceService(t *testing.T) *invoiceDeps {
	t.Helper()
	d := &invoiceDeps{wallet: newFakeWallet(), index: &fakeIndex{}}
	d.wallet.address = "pz1merchant"

	// Echo the submitted commitment input back as the transition output, the
	// way the creation transition behaves on-chain.
	d.wallet.executeFn = func(req ports.ExecuteRequest) (string, error) {
		commitment := req.Inputs[1]
		d.wallet.statusFn = func(txID string) (*ports.TransactionTrace, error) {
			return &ports.TransactionTrace{ID: txID, Status: ports.TxConfirmed, Outputs: []string{commitment}}, nil
		}
		return "tx-create", nil
	}

	resolver := NewResolverChain(zerolog.Nop(), &statusOutputResolver{wallet: d.wallet})
	d.svc = NewInvoiceService(protoForTest(), d.wallet, d.index, resolver, fastPolicy(), zerolog.Nop())
	return d
}

func TestCreateInvoice_StandardPrimary(t *testing.T) {
	d := setupInvoiceService(t)

	created, err := d.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		Amount: 1_500_000,
		Kind:   domain.InvoiceStandard,
		Asset:  domain.AssetPrimary,
		Memo:   "order 77",
	})
	require.NoError(t, err)

	inv := created.Invoice
	assert.Equal(t, "pz1merchant", inv.Merchant)
	assert.Equal(t, domain.InvoiceOpen, inv.Status)
	assert.Equal(t, "tx-create", created.ConfirmedID)

	// The link must reproduce the commitment on the payer side.
	salt, err := crypto.ParseField(created.Link.Salt)
	require.NoError(t, err)
	recomputed := crypto.InvoiceCommitment(created.Link.Merchant, created.Link.Amount, salt)
	assert.True(t, recomputed.Equal(&inv.Commitment))

	assert.Empty(t, created.Link.Token)
	assert.Empty(t, created.Link.Type)

	execs := d.wallet.executed()
	require.Len(t, execs, 1)
	assert.Equal(t, "create_invoice", execs[0].Function)
	assert.Equal(t, "1500000u64", execs[0].Inputs[2])
	assert.Equal(t, "0u8", execs[0].Inputs[3])
	assert.Equal(t, "0u8", execs[0].Inputs[4])

	require.Len(t, d.index.registered, 1)
	assert.Equal(t, inv.Commitment.String(), d.index.registered[0].Commitment)
}

func TestCreateInvoice_DonationCommitsToZero(t *testing.T) {
	d := setupInvoiceService(t)

	created, err := d.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		Amount: 0,
		Kind:   domain.InvoiceDonation,
		Asset:  domain.AssetPrimary,
	})
	require.NoError(t, err)
	assert.Equal(t, "donation", created.Link.Type)

	salt, err := crypto.ParseField(created.Link.Salt)
	require.NoError(t, err)
	zeroCommitted := crypto.InvoiceCommitment("pz1merchant", 0, salt)
	assert.True(t, zeroCommitted.Equal(&created.Invoice.Commitment))
}

func TestCreateInvoice_WrappedStableLinkCarriesToken(t *testing.T) {
	d := setupInvoiceService(t)

	created, err := d.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		Amount: 900_000,
		Kind:   domain.InvoiceMultiPay,
		Asset:  domain.AssetWrappedStable,
	})
	require.NoError(t, err)
	assert.Equal(t, "stable_token_v1", created.Link.Token)
	assert.Equal(t, "multi", created.Link.Type)

	execs := d.wallet.executed()
	require.Len(t, execs, 1)
	assert.Equal(t, "1u8", execs[0].Inputs[3])
	assert.Equal(t, "1u8", execs[0].Inputs[4])
}

func TestCreateInvoice_ZeroAmountRejected(t *testing.T) {
	d := setupInvoiceService(t)

	_, err := d.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		Amount: 0,
		Kind:   domain.InvoiceStandard,
		Asset:  domain.AssetPrimary,
	})
	require.Error(t, err)
	assert.Equal(t, apperror.CategoryInvalidInvoice, apperror.CategoryOf(err))
	assert.Empty(t, d.wallet.executed())
}

func TestCreateInvoice_ResolvedOutputMustMatch(t *testing.T) {
	d := setupInvoiceService(t)

	// The ledger reports a different commitment than the one submitted.
	d.wallet.executeFn = func(req ports.ExecuteRequest) (string, error) {
		d.wallet.statusFn = func(txID string) (*ports.TransactionTrace, error) {
			return &ports.TransactionTrace{ID: txID, Status: ports.TxConfirmed, Outputs: []string{"12345field"}}, nil
		}
		return "tx-create", nil
	}

	_, err := d.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		Amount: 1_000,
		Kind:   domain.InvoiceStandard,
		Asset:  domain.AssetPrimary,
	})
	require.Error(t, err)

	var ae *apperror.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "INV_002", ae.Code)
	assert.Empty(t, d.index.registered)
}

func TestCreateInvoice_IndexFailureIsBestEffort(t *testing.T) {
	d := setupInvoiceService(t)
	d.index.registerErr = assert.AnError

	created, err := d.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		Amount: 1_000,
		Kind:   domain.InvoiceStandard,
		Asset:  domain.AssetPrimary,
	})
	require.NoError(t, err, "the on-chain invoice exists regardless of the cache")
	assert.NotNil(t, created)
}
