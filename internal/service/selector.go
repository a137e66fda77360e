package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"zkinvoice/config"
	"zkinvoice/internal/core/domain"
	"zkinvoice/internal/core/ports"
	"zkinvoice/pkg/apperror"
)

// resyncDelay bounds the single retry against a refreshed record set before
// insufficiency is reported.
const resyncDelay = 2 * time.Second

// Selector picks a spendable private balance record. Policy is first-fit,
// not best-fit: record values are private, so sorting would optimize nothing
// observable, and simplicity wins.
type Selector struct {
	proto  config.Protocol
	wallet ports.WalletConnector
	log    zerolog.Logger

	// sleep is swapped in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ ports.RecordSelector = (*Selector)(nil)

// NewSelector creates a record selector backed by the wallet connector.
func NewSelector(proto config.Protocol, wallet ports.WalletConnector, log zerolog.Logger) *Selector {
	return &Selector{
		proto:  proto,
		wallet: wallet,
		log:    log,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Select returns the first unspent record of the given asset whose value
// strictly exceeds amount. Equal-value records are rejected: the transfer
// primitive requires a nonzero change output.
//
// If no plaintext record matches, remaining ciphertexts are decrypted and the
// predicate retried; after that, one bounded re-sync against a refreshed
// record set. Failing everything, the total unspent value decides between
// fragmentation (total covers the amount, consolidation needed) and plain
// insufficiency (conversion flow, where the asset supports it).
func (s *Selector) Select(ctx context.Context, asset domain.AssetKind, amount uint64) (*domain.BalanceRecord, error) {
	records, err := s.loadRecords(ctx, asset)
	if err != nil {
		return nil, err
	}
	if rec := firstFit(records, amount); rec != nil {
		return rec, nil
	}

	// One bounded re-sync: records may have landed since the last scan.
	if err := s.sleep(ctx, resyncDelay); err != nil {
		return nil, err
	}
	records, err = s.loadRecords(ctx, asset)
	if err != nil {
		return nil, err
	}
	if rec := firstFit(records, amount); rec != nil {
		return rec, nil
	}

	var total uint64
	for _, r := range records {
		if !r.Spent {
			total += r.Amount
		}
	}
	if total >= amount && total > 0 {
		s.log.Info().Uint64("total", total).Uint64("required", amount).Msg("balance fragmented across records")
		return nil, apperror.ErrFragmentedBalance(total, amount)
	}
	return nil, apperror.ErrInsufficientBalance(total, amount)
}

// loadRecords lists and decrypts the wallet's records for the program backing
// the asset, skipping plaintexts the engine does not recognize.
func (s *Selector) loadRecords(ctx context.Context, asset domain.AssetKind) ([]domain.BalanceRecord, error) {
	program := s.proto.CreditsProgram
	if asset == domain.AssetWrappedStable {
		program = s.proto.TokenProgram
	}

	ciphertexts, err := s.wallet.Records(ctx, program)
	if err != nil {
		return nil, err
	}

	records := make([]domain.BalanceRecord, 0, len(ciphertexts))
	for _, ct := range ciphertexts {
		plaintext, err := s.wallet.Decrypt(ctx, ct.Ciphertext)
		if err != nil {
			// Decryption is bounded by wallet capability; records we cannot
			// open are skipped rather than failing the scan.
			s.log.Debug().Err(err).Str("record_id", ct.ID).Msg("record not decryptable, skipping")
			continue
		}
		parsed, err := domain.ParseRecordPlaintext(plaintext)
		if err != nil {
			s.log.Warn().Err(err).Str("record_id", ct.ID).Msg("malformed record plaintext, skipping")
			continue
		}
		balance, ok := parsed.(domain.BalanceRecord)
		if !ok {
			continue
		}
		if balance.Asset != asset {
			continue
		}
		balance.ID = ct.ID
		records = append(records, balance)
	}
	return records, nil
}

// firstFit returns the first unspent record with value strictly above amount.
func firstFit(records []domain.BalanceRecord, amount uint64) *domain.BalanceRecord {
	for i := range records {
		r := records[i]
		if !r.Spent && r.Amount > amount {
			return &r
		}
	}
	return nil
}
