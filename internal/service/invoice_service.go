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

// CreateInvoiceRequest describes a merchant's invoice creation.
type CreateInvoiceRequest struct {
	Amount uint64 // ignored in the commitment for donation invoices
	Kind   domain.InvoiceKind
	Asset  domain.AssetKind
	Memo   string
}

// CreatedInvoice is the result of a confirmed creation: the invoice plus the
// shareable link that fully determines it.
type CreatedInvoice struct {
	Invoice     *domain.Invoice
	Link        link.Params
	ConfirmedID string
}

// InvoiceService drives merchant-side invoice creation: salt generation,
// commitment derivation, creation transition submission, output-hash
// resolution and off-chain metadata registration.
type InvoiceService struct {
	proto    config.Protocol
	wallet   ports.WalletConnector
	index    ports.InvoiceIndex
	resolver *ResolverChain
	policy   RetryPolicy
	log      zerolog.Logger
}

// NewInvoiceService wires the merchant-side service.
func NewInvoiceService(
	proto config.Protocol,
	wallet ports.WalletConnector,
	index ports.InvoiceIndex,
	resolver *ResolverChain,
	policy RetryPolicy,
	log zerolog.Logger,
) *InvoiceService {
	return &InvoiceService{
		proto:    proto,
		wallet:   wallet,
		index:    index,
		resolver: resolver,
		policy:   policy,
		log:      log,
	}
}

// CreateInvoice submits a creation transition and waits for it to land. The
// resolved output commitment must equal the locally derived one; the
// invariant that payers verify later is established here.
func (s *InvoiceService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*CreatedInvoice, error) {
	if req.Kind != domain.InvoiceDonation && req.Amount == 0 {
		return nil, apperror.Validation("invoice amount must be positive")
	}

	merchant, err := s.wallet.Address(ctx)
	if err != nil {
		return nil, err
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}

	commitAmount := req.Amount
	if req.Kind == domain.InvoiceDonation {
		commitAmount = 0
	}
	commitment := crypto.InvoiceCommitment(merchant, commitAmount, salt)

	txID, err := s.wallet.Execute(ctx, ports.ExecuteRequest{
		ProgramID: s.proto.InvoiceProgram,
		Function:  s.proto.CreateFunction,
		Inputs: []string{
			crypto.FieldInput(salt),
			crypto.FieldInput(commitment),
			fmt.Sprintf("%du64", req.Amount),
			domain.KindCode(req.Kind),
			domain.AssetCode(req.Asset),
		},
		FeeMicro: s.proto.FeeMicro,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("tx_id", txID).Str("commitment", commitment.String()).Msg("invoice creation submitted")

	confirmedID, err := s.awaitConfirmation(ctx, txID)
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolver.Resolve(ctx, confirmedID)
	if err != nil {
		return nil, err
	}
	if resolved != commitment.String() {
		return nil, apperror.ErrInvoiceMismatch()
	}

	meta := ports.InvoiceMetadata{
		Commitment:        commitment.String(),
		EncryptedMerchant: merchant,
		Kind:              req.Kind,
		Asset:             req.Asset,
		Status:            domain.InvoiceOpen,
		Memo:              req.Memo,
	}
	if err := s.index.Register(ctx, meta); err != nil {
		// The index is a cache; the on-chain invoice exists regardless.
		s.log.Warn().Err(apperror.ErrBookkeeping(err)).Str("commitment", commitment.String()).Msg("invoice metadata registration failed")
	}

	params := link.Params{
		Merchant: merchant,
		Amount:   req.Amount,
		Salt:     salt.String(),
		Memo:     req.Memo,
	}
	if req.Asset == domain.AssetWrappedStable {
		params.Token = s.proto.TokenProgram
	}
	switch req.Kind {
	case domain.InvoiceMultiPay:
		params.Type = "multi"
	case domain.InvoiceDonation:
		params.Type = "donation"
	}

	return &CreatedInvoice{
		Invoice: &domain.Invoice{
			Merchant:   merchant,
			Amount:     req.Amount,
			Salt:       salt,
			Commitment: commitment,
			Asset:      req.Asset,
			Kind:       req.Kind,
			Status:     domain.InvoiceOpen,
			Memo:       req.Memo,
		},
		Link:        params,
		ConfirmedID: confirmedID,
	}, nil
}

func (s *InvoiceService) awaitConfirmation(ctx context.Context, txID string) (string, error) {
	var confirmed string
	err := s.policy.Poll(ctx, s.log, func(ctx context.Context) (bool, error) {
		trace, err := s.wallet.Status(ctx, txID)
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
	return confirmed, err
}
