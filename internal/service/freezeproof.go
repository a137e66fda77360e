package service

import (
	"context"

	"github.com/rs/zerolog"

	"zkinvoice/config"
	"zkinvoice/internal/core/ports"
	"zkinvoice/internal/crypto"
	"zkinvoice/pkg/apperror"
)

// FreezeProofService builds compliance proofs against the freeze registry for
// wrapped-stable payments.
//
// The builder fails closed: every proof is folded back to a root and compared
// against the on-chain registry root before it is handed out. There is no
// all-empty-sibling fallback; a proof that cannot be validated aborts the
// payment.
type FreezeProofService struct {
	proto  config.Protocol
	ledger ports.LedgerQuery
	log    zerolog.Logger
}

var _ ports.FreezeProofBuilder = (*FreezeProofService)(nil)

// NewFreezeProofService creates a proof builder backed by the ledger query
// collaborator.
func NewFreezeProofService(proto config.Protocol, ledger ports.LedgerQuery, log zerolog.Logger) *FreezeProofService {
	return &FreezeProofService{proto: proto, ledger: ledger, log: log}
}

// Build constructs a fresh proof for the target leaf index against the
// current registry state.
func (s *FreezeProofService) Build(ctx context.Context, leafIndex uint32) (*crypto.FreezeListProof, error) {
	// The registry's first slot is the only one populated in the current
	// deployment; its value replaces the empty sibling when adjacent to the
	// target.
	var occupied *crypto.FieldElement
	leafValue, found, err := s.ledger.MappingValue(ctx, s.proto.TokenProgram, s.proto.RegistryMapping, "0")
	if err != nil {
		return nil, apperror.ErrTransient(err)
	}
	if found {
		e, err := crypto.ParseField(leafValue)
		if err != nil {
			return nil, apperror.Validation("freeze registry leaf 0 is not a field element")
		}
		occupied = &e
	}

	proof, err := crypto.BuildFreezeProof(leafIndex, occupied)
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}

	rootValue, found, err := s.ledger.MappingValue(ctx, s.proto.TokenProgram, s.proto.RegistryMapping, s.proto.RegistryRootKey)
	if err != nil {
		return nil, apperror.ErrTransient(err)
	}

	expected := crypto.EmptyRoot()
	if found {
		expected, err = crypto.ParseField(rootValue)
		if err != nil {
			return nil, apperror.Validation("freeze registry root is not a field element")
		}
	}

	folded := crypto.FoldProof(crypto.EmptyLeaf(), proof)
	if !folded.Equal(&expected) {
		s.log.Error().
			Uint32("leaf_index", leafIndex).
			Str("folded_root", folded.String()).
			Str("registry_root", expected.String()).
			Msg("freeze proof does not fold to the on-chain root, failing closed")
		return nil, apperror.ErrFreezeRootMismatch()
	}

	return &proof, nil
}
