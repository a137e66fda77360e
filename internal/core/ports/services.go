package ports

import (
	"context"

	"zkinvoice/internal/core/domain"
	"zkinvoice/internal/crypto"
)

// RecordSelector picks a spendable private balance record for a payment, or
// reports insufficiency. The returned record's value strictly exceeds the
// requested amount; equality is rejected because the transfer primitive needs
// a nonzero change output.
type RecordSelector interface {
	Select(ctx context.Context, asset domain.AssetKind, amount uint64) (*domain.BalanceRecord, error)
}

// FreezeProofBuilder constructs the compliance proof pair required by
// wrapped-stable payments. Implementations fail closed: a proof that does not
// fold to the on-chain registry root is never returned.
type FreezeProofBuilder interface {
	Build(ctx context.Context, leafIndex uint32) (*crypto.FreezeListProof, error)
}

// HashResolver is one strategy for recovering a transition's output
// commitment. ok=false with a nil error means the strategy ran but found
// nothing; errors are logged by the chain and do not abort the overall
// resolution.
type HashResolver interface {
	Name() string
	Resolve(ctx context.Context, txID string) (hash string, ok bool, err error)
}
