package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"zkinvoice/config"
	"zkinvoice/internal/core/domain"
	"zkinvoice/internal/core/ports"
	"zkinvoice/internal/crypto"
	"zkinvoice/internal/link"
	"zkinvoice/pkg/apperror"
)

// PayRequest describes one payment session.
type PayRequest struct {
	Link link.Params
	// DonationAmount is the payer-chosen amount for donation invoices. The
	// invoice commitment still binds amount zero; only settlement moves this
	// value.
	DonationAmount uint64
}

// PaymentOutcome is the terminal result of a payment session. The payment
// secret is exposed because MultiPay and Donation payers must retain it to
// prove their specific contribution later.
type PaymentOutcome struct {
	Attempt     *domain.TransactionAttempt
	Invoice     *domain.Invoice
	Secret      crypto.FieldElement
	Receipt     crypto.FieldElement
	ConfirmedID string
	AlreadyPaid bool
}

// LifecycleController drives the payment state machine:
//
//	Connect -> Verify -> {Convert ->} Pay -> {Success | AlreadyPaid}
//
// One controller instance serves one user session; it holds no shared mutable
// state across sessions and always re-queries external state rather than
// caching across polling cycles.
type LifecycleController struct {
	proto    config.Protocol
	wallet   ports.WalletConnector
	ledger   ports.LedgerQuery
	index    ports.InvoiceIndex
	selector ports.RecordSelector
	proofs   ports.FreezeProofBuilder
	resolver *ResolverChain
	policy   RetryPolicy
	log      zerolog.Logger
	onStep   func(domain.Step)
}

// NewLifecycleController wires the controller. onStep may be nil; when set it
// receives every state transition for UI display.
func NewLifecycleController(
	proto config.Protocol,
	wallet ports.WalletConnector,
	ledger ports.LedgerQuery,
	index ports.InvoiceIndex,
	selector ports.RecordSelector,
	proofs ports.FreezeProofBuilder,
	resolver *ResolverChain,
	policy RetryPolicy,
	log zerolog.Logger,
	onStep func(domain.Step),
) *LifecycleController {
	return &LifecycleController{
		proto:    proto,
		wallet:   wallet,
		ledger:   ledger,
		index:    index,
		selector: selector,
		proofs:   proofs,
		resolver: resolver,
		policy:   policy,
		log:      log,
		onStep:   onStep,
	}
}

func (c *LifecycleController) step(attempt *domain.TransactionAttempt, step domain.Step) {
	attempt.Advance(step)
	c.log.Info().Str("attempt_id", attempt.ID.String()).Str("step", string(step)).Msg("lifecycle step")
	if c.onStep != nil {
		c.onStep(step)
	}
}

func (c *LifecycleController) fail(attempt *domain.TransactionAttempt, err error) error {
	attempt.LastErr = err
	c.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Str("step", string(attempt.Step)).Msg("payment attempt failed")
	return err
}

// PayInvoice runs a full payment session for the given invoice link.
func (c *LifecycleController) PayInvoice(ctx context.Context, req PayRequest) (*PaymentOutcome, error) {
	attempt := domain.NewAttempt()

	c.step(attempt, domain.StepConnect)
	payer, err := c.wallet.Address(ctx)
	if err != nil {
		return nil, c.fail(attempt, err)
	}

	c.step(attempt, domain.StepVerify)
	inv, err := c.Verify(ctx, req.Link)
	if err != nil {
		return nil, c.fail(attempt, err)
	}

	// Idempotent short-circuit: a settled invoice is never paid again. For
	// donations, Settled means the merchant closed the collection.
	if inv.Status == domain.InvoiceSettled {
		c.step(attempt, domain.StepAlreadyPaid)
		return &PaymentOutcome{Attempt: attempt, Invoice: inv, AlreadyPaid: true}, nil
	}

	amount := inv.Amount
	if inv.Kind == domain.InvoiceDonation {
		amount = req.DonationAmount
	}
	if amount == 0 {
		return nil, c.fail(attempt, apperror.Validation("payment amount must be positive"))
	}

	record, err := c.selector.Select(ctx, inv.Asset, amount)
	if err != nil {
		// Insufficiency and fragmentation route to conversion when the asset
		// supports the public-to-private path.
		if apperror.CategoryOf(err) == apperror.CategoryBalance && inv.Asset == domain.AssetPrimary {
			c.step(attempt, domain.StepConvert)
			if convErr := c.convert(ctx, attempt, payer, amount); convErr != nil {
				return nil, c.fail(attempt, convErr)
			}
			record, err = c.selector.Select(ctx, inv.Asset, amount)
		}
		if err != nil {
			return nil, c.fail(attempt, err)
		}
	}

	c.step(attempt, domain.StepPay)
	outcome, err := c.pay(ctx, attempt, payer, inv, record, amount)
	if err != nil {
		return nil, c.fail(attempt, err)
	}

	c.step(attempt, domain.StepSuccess)
	return outcome, nil
}

// Verify resolves the invoice link against the ledger: it looks up the
// commitment by salt, recomputes it locally and compares, then fetches the
// on-chain status entry. A mismatch or missing mapping means the invoice is
// forged or corrupted and the flow aborts; nothing here is retried.
func (c *LifecycleController) Verify(ctx context.Context, p link.Params) (*domain.Invoice, error) {
	kind, err := p.Kind()
	if err != nil {
		return nil, apperror.ErrInvalidLink(err)
	}
	if _, err := p.Asset(c.proto.TokenProgram); err != nil {
		return nil, apperror.ErrInvalidLink(err)
	}
	salt, err := crypto.ParseField(p.Salt)
	if err != nil {
		return nil, apperror.ErrInvalidLink(err)
	}

	onChain, found, err := c.ledger.MappingValue(ctx, c.proto.InvoiceProgram, c.proto.InvoiceMapping, salt.String())
	if err != nil {
		return nil, apperror.ErrTransient(err)
	}
	if !found {
		return nil, apperror.ErrInvoiceNotFound()
	}

	commitAmount := p.Amount
	if kind == domain.InvoiceDonation {
		commitAmount = 0
	}
	local := crypto.InvoiceCommitment(p.Merchant, commitAmount, salt)

	onChainElem, err := crypto.ParseField(onChain)
	if err != nil {
		return nil, apperror.ErrInvoiceMismatch()
	}
	if !local.Equal(&onChainElem) {
		return nil, apperror.ErrInvoiceMismatch()
	}

	statusValue, found, err := c.ledger.MappingValue(ctx, c.proto.InvoiceProgram, c.proto.StatusMapping, local.String())
	if err != nil {
		return nil, apperror.ErrTransient(err)
	}
	if !found {
		return nil, apperror.ErrInvoiceNotFound()
	}
	entry, err := domain.ParseStatusEntry(statusValue)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}
	if entry.Kind != kind {
		return nil, apperror.Validation("invoice link kind disagrees with the on-chain status entry")
	}

	return &domain.Invoice{
		Merchant:   p.Merchant,
		Amount:     p.Amount,
		Salt:       salt,
		Commitment: local,
		Asset:      entry.Asset,
		Kind:       entry.Kind,
		Status:     entry.Status,
		Memo:       p.Memo,
	}, nil
}

// convert moves public balance into a private record sized to the required
// amount plus a safety buffer for fees and rounding, then waits for
// confirmation before the payment proceeds.
func (c *LifecycleController) convert(ctx context.Context, attempt *domain.TransactionAttempt, payer string, amount uint64) error {
	buffered := amount + c.proto.ConversionBuffer
	txID, err := c.wallet.Execute(ctx, ports.ExecuteRequest{
		ProgramID: c.proto.CreditsProgram,
		Function:  c.proto.ConvertFunction,
		Inputs:    []string{payer, fmt.Sprintf("%du64", buffered)},
		FeeMicro:  c.proto.FeeMicro,
	})
	if err != nil {
		return err
	}
	attempt.TransientID = txID
	c.log.Info().Str("tx_id", txID).Uint64("amount", buffered).Msg("public-to-private conversion submitted")

	_, err = c.awaitConfirmation(ctx, attempt, txID)
	return err
}

// pay submits the payment transition with a freshly generated payment secret,
// waits for confirmation, recovers the output commitment and performs
// best-effort bookkeeping against the off-chain index.
func (c *LifecycleController) pay(
	ctx context.Context,
	attempt *domain.TransactionAttempt,
	payer string,
	inv *domain.Invoice,
	record *domain.BalanceRecord,
	amount uint64,
) (*PaymentOutcome, error) {
	secret, err := crypto.GeneratePaymentSecret()
	if err != nil {
		return nil, err
	}
	receipt := crypto.ReceiptCommitment(secret, inv.Salt)

	function := c.proto.PayFunction
	inputs := []string{
		record.ID,
		crypto.FieldInput(inv.Commitment),
		crypto.FieldInput(receipt),
		fmt.Sprintf("%du64", amount),
	}
	if inv.Asset == domain.AssetWrappedStable {
		function = c.proto.PayStableFunction
		proof, err := c.proofs.Build(ctx, crypto.FreezeLeafIndex(payer))
		if err != nil {
			return nil, err
		}
		// The verifier takes a proof pair; with a single populated registry
		// slot both instances are identical.
		inputs = append(inputs, proof.MarshalInput(), proof.MarshalInput())
	}

	txID, err := c.wallet.Execute(ctx, ports.ExecuteRequest{
		ProgramID: c.proto.InvoiceProgram,
		Function:  function,
		Inputs:    inputs,
		FeeMicro:  c.proto.FeeMicro,
	})
	if err != nil {
		return nil, err
	}
	attempt.TransientID = txID
	c.log.Info().Str("tx_id", txID).Str("record_id", record.ID).Msg("payment submitted")

	confirmedID, err := c.awaitConfirmation(ctx, attempt, txID)
	if err != nil {
		return nil, err
	}

	resolved, err := c.resolver.Resolve(ctx, confirmedID)
	if err != nil {
		return nil, err
	}
	if resolved != inv.Commitment.String() {
		c.log.Warn().
			Str("resolved", resolved).
			Str("expected", inv.Commitment.String()).
			Msg("resolved transition output differs from the verified commitment")
	}

	// On-chain settlement is authoritative; index failures are logged only.
	update := ports.SettlementUpdate{
		PaymentTxID: confirmedID,
		Payer:       payer,
		Repeatable:  inv.Kind.Repeatable(),
	}
	if err := c.index.MarkSettled(ctx, inv.Commitment.String(), update); err != nil {
		c.log.Warn().Err(apperror.ErrBookkeeping(err)).Str("commitment", inv.Commitment.String()).Msg("off-chain bookkeeping failed")
	}

	return &PaymentOutcome{
		Attempt:     attempt,
		Invoice:     inv,
		Secret:      secret,
		Receipt:     receipt,
		ConfirmedID: confirmedID,
	}, nil
}

// awaitConfirmation polls the wallet for the transaction status under the
// shared retry policy. Rejection is fatal; transient errors are swallowed by
// the policy; exhaustion raises a timeout.
func (c *LifecycleController) awaitConfirmation(ctx context.Context, attempt *domain.TransactionAttempt, txID string) (string, error) {
	var confirmed string
	err := c.policy.Poll(ctx, c.log, func(ctx context.Context) (bool, error) {
		attempt.Attempts++
		trace, err := c.wallet.Status(ctx, txID)
		if err != nil {
			return false, err
		}
		switch trace.Status {
		case ports.TxConfirmed:
			confirmed = trace.ID
			return true, nil
		case ports.TxRejected:
			return false, apperror.ErrTransactionRejected(txID)
		default:
			return false, nil
		}
	})
	if err != nil {
		return "", err
	}
	attempt.ConfirmedID = confirmed
	return confirmed, nil
}
