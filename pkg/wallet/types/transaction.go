package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Action is the closed set of on-chain actions the wallet can submit.
type Action int

const (
	ActionTransfer Action = iota + 1
	ActionBond
	ActionBondExtra
	ActionUnbond
	ActionNominate
	ActionChill
	ActionWithdrawUnbonded
	ActionContribute
)

// AllActions lists every Action in declaration order.
var AllActions = []Action{
	ActionTransfer,
	ActionBond,
	ActionBondExtra,
	ActionUnbond,
	ActionNominate,
	ActionChill,
	ActionWithdrawUnbonded,
	ActionContribute,
}

var actionNames = map[Action]string{
	ActionTransfer:         "transfer",
	ActionBond:             "bond",
	ActionBondExtra:        "bondExtra",
	ActionUnbond:           "unbond",
	ActionNominate:         "nominate",
	ActionChill:            "chill",
	ActionWithdrawUnbonded: "withdrawUnbonded",
	ActionContribute:       "contribute",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Valid reports whether a is one of the declared actions.
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// HasAmount reports whether the action carries a balance amount.
func (a Action) HasAmount() bool {
	switch a {
	case ActionTransfer, ActionBond, ActionBondExtra, ActionUnbond, ActionContribute:
		return true
	default:
		return false
	}
}

// ParseAction accepts the canonical camelCase name, case-insensitively.
func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if strings.EqualFold(name, s) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid action %d", int(a))
	}
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Request is an intended on-chain action.
// Amount is always in minimal chain units (Planck); human readable amounts are
// converted exactly once by pkg/wallet/units before a Request is built.
type Request struct {
	Action  Action   `json:"action"`
	ChainID string   `json:"chain_id"`
	From    string   `json:"from"`             // SS58 sender address
	Amount  *big.Int `json:"amount,omitempty"` // minimal units

	// Target is the recipient of a transfer.
	Target string `json:"target,omitempty"`
	// Validators are the nomination targets.
	Validators []string `json:"validators,omitempty"`
	// ParaID is the crowdloan fund index for contribute.
	ParaID uint32 `json:"para_id,omitempty"`

	// ExpiresAt is optional; zero means no expiration.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// NonceOffset is added to the on-chain account nonce when building, for an
	// extrinsic signed ahead of another one from the same account.
	NonceOffset uint64 `json:"-"`
}

// AmountOrZero never returns nil.
func (r *Request) AmountOrZero() *big.Int {
	if r.Amount == nil {
		return new(big.Int)
	}
	return r.Amount
}

// Derive copies r with a different action, keeping the sender, chain and expiry.
func (r *Request) Derive(action Action) *Request {
	return &Request{
		Action:    action,
		ChainID:   r.ChainID,
		From:      r.From,
		ExpiresAt: r.ExpiresAt,
	}
}

// WithNonceOffset copies r, building at account nonce + offset.
func (r *Request) WithNonceOffset(offset uint64) *Request {
	cp := *r
	cp.NonceOffset = offset
	return &cp
}

// SameIntent reports whether two requests describe the same submission.
func (r *Request) SameIntent(o *Request) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.Action != o.Action || r.ChainID != o.ChainID || r.From != o.From ||
		r.Target != o.Target || r.ParaID != o.ParaID || len(r.Validators) != len(o.Validators) {
		return false
	}
	if r.AmountOrZero().Cmp(o.AmountOrZero()) != 0 {
		return false
	}
	for i := range r.Validators {
		if r.Validators[i] != o.Validators[i] {
			return false
		}
	}
	return true
}

// UnsignedTx is a built extrinsic waiting for a signature.
// Payload holds the exact bytes the signer must sign; Raw is chain client state
// needed to assemble the signed extrinsic and is opaque to everybody else.
type UnsignedTx struct {
	Request     *Request `json:"request"`
	Payload     []byte   `json:"payload"`
	SpecVersion uint32   `json:"spec_version"`
	Nonce       uint64   `json:"nonce"`

	Raw any `json:"-"`
}

// SignatureScheme of an account key.
type SignatureScheme string

const (
	SchemeSr25519 SignatureScheme = "sr25519"
	SchemeEd25519 SignatureScheme = "ed25519"
	SchemeEcdsa   SignatureScheme = "ecdsa"
)

// Signature produced by a signer for an UnsignedTx payload.
type Signature struct {
	Scheme    SignatureScheme `json:"scheme"`
	Bytes     []byte          `json:"signature"`
	PublicKey []byte          `json:"public_key"`
}

// SignedTx is ready to be submitted.
type SignedTx struct {
	Unsigned  *UnsignedTx
	Signature *Signature
}

// FeeEstimate is advisory only; the fee reported in Outcome is authoritative.
type FeeEstimate struct {
	ChainID string   `json:"chain_id"`
	Action  Action   `json:"action"`
	Partial *big.Int `json:"partial_fee"`
}
