package lifecycle

import (
	"context"
	"math/big"

	"dot-wallet/pkg/wallet/types"
)

// ChainClient is everything the coordinator needs from a chain.
type ChainClient interface {
	// CheckAddress validates an account address for this chain.
	CheckAddress(addr string) error

	// Build turns a request into an unsigned extrinsic (one builder per Action).
	Build(ctx context.Context, req *types.Request) (*types.UnsignedTx, error)

	SubmitAndWatch(ctx context.Context, tx *types.SignedTx) (Subscription, error)
	QueryBlock(ctx context.Context, blockHash string) (*types.Block, error)
	EstimateFee(ctx context.Context, tx *types.UnsignedTx, signer string) (*big.Int, error)

	MaxNominations(ctx context.Context) (uint32, error)
	// ActiveStake returns the bonded active balance of a stash, zero when not bonded.
	ActiveStake(ctx context.Context, address string) (*big.Int, error)
}

// Subscription to the status of one submitted extrinsic.
type Subscription interface {
	// TxHash is computed locally from the encoded extrinsic.
	TxHash() string
	Events() <-chan types.StatusEvent
	Err() <-chan error
	Unsubscribe()
}

// Signer produces a signature for an unsigned payload.
// Implementations report ErrIncorrectSecret, ErrSignerLocked and
// ErrSignerRejected (possibly wrapped).
type Signer interface {
	Sign(ctx context.Context, tx *types.UnsignedTx, sc types.SigningContext) (*types.Signature, error)
}

// HistoryStore is an append-only per-account log.
type HistoryStore interface {
	Append(ctx context.Context, owner string, entry *types.HistoryEntry) error
}
