package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Status of a submitted transaction as reported to the user.
type Status string

const (
	StatusPending   Status = "pending"
	StatusIncluded  Status = "included"
	StatusFinalized Status = "finalized"
	StatusFailed    Status = "failed"
)

// FailureKind classifies a failed Outcome.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureDispatch  FailureKind = "dispatch"
	FailureTransport FailureKind = "transport"
	FailureExpired   FailureKind = "expired"
)

// DispatchError is the chain-reported reason an included extrinsic failed.
type DispatchError struct {
	Section string `json:"section,omitempty"`
	Name    string `json:"name"`
	Docs    string `json:"docs,omitempty"`
}

func (e *DispatchError) Error() string {
	var sb strings.Builder
	if e.Section != "" {
		sb.WriteString(e.Section)
		sb.WriteByte('.')
	}
	sb.WriteString(e.Name)
	if e.Docs != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Docs)
	}
	return sb.String()
}

// Outcome is the immutable result of one submission.
type Outcome struct {
	Status         Status         `json:"status"`
	TxHash         string         `json:"tx_hash,omitempty"`
	BlockHash      string         `json:"block_hash,omitempty"`
	ExtrinsicIndex int            `json:"extrinsic_index"` // -1 when unknown
	FeePaid        *big.Int       `json:"fee_paid,omitempty"`
	FailureKind    FailureKind    `json:"failure_kind,omitempty"`
	FailureReason  string         `json:"failure_reason,omitempty"`
	Dispatch       *DispatchError `json:"dispatch_error,omitempty"`
}

// Succeeded reports a finalized outcome.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Status == StatusFinalized
}

// Clone returns a deep copy so callers cannot mutate a recorded outcome.
func (o *Outcome) Clone() *Outcome {
	if o == nil {
		return nil
	}
	c := *o
	if o.FeePaid != nil {
		c.FeePaid = new(big.Int).Set(o.FeePaid)
	}
	if o.Dispatch != nil {
		d := *o.Dispatch
		c.Dispatch = &d
	}
	return &c
}

func FailedOutcome(kind FailureKind, reason string) *Outcome {
	return &Outcome{
		Status:         StatusFailed,
		ExtrinsicIndex: -1,
		FailureKind:    kind,
		FailureReason:  reason,
	}
}

// HistoryEntry is derived once from a terminal Outcome and handed to the
// history store. It is never mutated afterwards.
type HistoryEntry struct {
	Owner          string
	ChainID        string
	Action         Action
	Status         Status
	FailureKind    FailureKind
	TxHash         string
	BlockHash      string
	ExtrinsicIndex int
	Amount         *big.Int
	Target         string
	Fee            *big.Int
	FailureReason  string
	CreatedAt      time.Time
}

// NewHistoryEntry records req and its terminal outcome.
func NewHistoryEntry(req *Request, out *Outcome, at time.Time) *HistoryEntry {
	e := &HistoryEntry{
		Owner:          req.From,
		ChainID:        req.ChainID,
		Action:         req.Action,
		Status:         out.Status,
		FailureKind:    out.FailureKind,
		TxHash:         out.TxHash,
		BlockHash:      out.BlockHash,
		ExtrinsicIndex: out.ExtrinsicIndex,
		Amount:         new(big.Int).Set(req.AmountOrZero()),
		Target:         req.Target,
		FailureReason:  out.FailureReason,
		CreatedAt:      at,
	}
	if out.FeePaid != nil {
		e.Fee = new(big.Int).Set(out.FeePaid)
	}
	if req.Action == ActionNominate {
		e.Target = strings.Join(req.Validators, ",")
	}
	if req.Action == ActionContribute {
		e.Target = fmt.Sprintf("para:%d", req.ParaID)
	}
	return e
}
