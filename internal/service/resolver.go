package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"zkinvoice/internal/core/ports"
	"zkinvoice/internal/crypto"
	"zkinvoice/pkg/apperror"
)

// ResolverChain recovers a transition's output commitment by trying an
// ordered list of independent strategies and short-circuiting on the first
// success. A standard chain of responsibility; no strategy failure aborts the
// overall resolution.
type ResolverChain struct {
	resolvers []ports.HashResolver
	log       zerolog.Logger
}

// NewResolverChain builds a chain in the given order.
func NewResolverChain(log zerolog.Logger, resolvers ...ports.HashResolver) *ResolverChain {
	return &ResolverChain{resolvers: resolvers, log: log}
}

// DefaultResolvers returns the protocol's three channels in order: inline
// status outputs, wallet history, public explorer.
func DefaultResolvers(wallet ports.WalletConnector, ledger ports.LedgerQuery, propagationDelay time.Duration) []ports.HashResolver {
	return []ports.HashResolver{
		&statusOutputResolver{wallet: wallet},
		&historyResolver{wallet: wallet},
		&explorerResolver{ledger: ledger, delay: propagationDelay},
	}
}

// Resolve runs the strategies in order. All of them failing yields a
// hash-unrecoverable error: the underlying transition may still have
// succeeded on-chain, this is an observability gap, not a correctness one.
func (c *ResolverChain) Resolve(ctx context.Context, txID string) (string, error) {
	for _, r := range c.resolvers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		hash, ok, err := r.Resolve(ctx, txID)
		if err != nil {
			c.log.Debug().Err(err).Str("strategy", r.Name()).Str("tx_id", txID).Msg("hash resolution strategy failed")
			continue
		}
		if ok {
			c.log.Debug().Str("strategy", r.Name()).Str("tx_id", txID).Msg("output hash resolved")
			return hash, nil
		}
	}
	return "", apperror.ErrHashUnrecoverable(txID)
}

// extractCommitment finds the first field-typed output in a transition trace.
func extractCommitment(trace *ports.TransactionTrace) (string, bool) {
	if trace == nil {
		return "", false
	}
	for _, out := range trace.Outputs {
		if !strings.HasSuffix(out, "field") {
			continue
		}
		e, err := crypto.ParseField(out)
		if err != nil {
			continue
		}
		return e.String(), true
	}
	return "", false
}

// statusOutputResolver extracts the output directly from the status-polling
// response, when the wallet surfaces execution outputs inline.
type statusOutputResolver struct {
	wallet ports.WalletConnector
}

func (r *statusOutputResolver) Name() string { return "status-output" }

func (r *statusOutputResolver) Resolve(ctx context.Context, txID string) (string, bool, error) {
	trace, err := r.wallet.Status(ctx, txID)
	if err != nil {
		return "", false, err
	}
	hash, ok := extractCommitment(trace)
	return hash, ok, nil
}

// historyResolver queries the wallet's transaction-history capability. A
// permission denial or disconnection aborts this strategy without retry, to
// avoid futile repeated wallet prompts.
type historyResolver struct {
	wallet ports.WalletConnector
}

func (r *historyResolver) Name() string { return "wallet-history" }

func (r *historyResolver) Resolve(ctx context.Context, txID string) (string, bool, error) {
	trace, err := r.wallet.History(ctx, txID)
	if err != nil {
		return "", false, err
	}
	hash, ok := extractCommitment(trace)
	return hash, ok, nil
}

// explorerResolver queries the public ledger explorer for the transaction's
// execution trace, after a short propagation delay.
type explorerResolver struct {
	ledger ports.LedgerQuery
	delay  time.Duration
}

func (r *explorerResolver) Name() string { return "explorer" }

func (r *explorerResolver) Resolve(ctx context.Context, txID string) (string, bool, error) {
	if r.delay > 0 {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(r.delay):
		}
	}
	trace, err := r.ledger.TransactionTrace(ctx, txID)
	if err != nil {
		return "", false, err
	}
	hash, ok := extractCommitment(trace)
	return hash, ok, nil
}
