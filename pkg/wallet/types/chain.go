package types

import "math/big"

// StatusKind of a submission status event reported by the chain client.
type StatusKind int

const (
	StatusEventReady StatusKind = iota
	StatusEventInBlock
	StatusEventFinalized
	StatusEventDropped
)

func (k StatusKind) String() string {
	switch k {
	case StatusEventReady:
		return "ready"
	case StatusEventInBlock:
		return "inBlock"
	case StatusEventFinalized:
		return "finalized"
	case StatusEventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// StatusEvent is one update of a submit-and-watch subscription.
type StatusEvent struct {
	Kind      StatusKind
	BlockHash string
	// TxHash is the hash computed locally at submission.
	TxHash   string
	Dispatch *DispatchError
	Reason   string
}

// Block is a finalized block as seen by the wallet.
type Block struct {
	Hash       string
	Number     uint64
	Extrinsics []BlockExtrinsic
}

// BlockExtrinsic is a signed extrinsic inside a Block. Unsigned extrinsics
// (inherents) have an empty Signer.
type BlockExtrinsic struct {
	Index  int
	Hash   string
	Signer string
	Fee    *big.Int
}

// FirstSignedBy returns the first extrinsic in iteration order whose signer
// equals address exactly. Later matches in the same block are ignored.
func (b *Block) FirstSignedBy(address string) (BlockExtrinsic, bool) {
	if b == nil {
		return BlockExtrinsic{}, false
	}
	for _, ext := range b.Extrinsics {
		if ext.Signer != "" && ext.Signer == address {
			return ext, true
		}
	}
	return BlockExtrinsic{}, false
}
