package types

import (
	"encoding/json"
)

// SignerKind tags the SigningContext variant.
type SignerKind string

const (
	SignerPassword SignerKind = "password"
	SignerLedger   SignerKind = "ledger"
	SignerQR       SignerKind = "qr"
	SignerInjected SignerKind = "injected"
)

// SigningContext selects the mechanism that produces the signature.
// The set of variants is closed: PasswordContext, LedgerContext, QRRelayContext
// and InjectedContext.
type SigningContext interface {
	Kind() SignerKind
	isSigningContext()
}

// PasswordContext unlocks a local keystore. The secret is never persisted or
// logged; call Wipe once the signature has been obtained.
type PasswordContext struct {
	secret []byte
}

func NewPasswordContext(password string) *PasswordContext {
	return &PasswordContext{secret: []byte(password)}
}

func (*PasswordContext) Kind() SignerKind  { return SignerPassword }
func (*PasswordContext) isSigningContext() {}

// Secret returns the raw secret. Callers must not retain it.
func (p *PasswordContext) Secret() []byte {
	return p.secret
}

// Wiped reports whether Wipe has already been called.
func (p *PasswordContext) Wiped() bool {
	return p.secret == nil
}

// Wipe zeroes the secret in place.
func (p *PasswordContext) Wipe() {
	for i := range p.secret {
		p.secret[i] = 0
	}
	p.secret = nil
}

func (p *PasswordContext) String() string   { return "PasswordContext(***)" }
func (p *PasswordContext) GoString() string { return p.String() }

func (p *PasswordContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"kind": string(SignerPassword)})
}

// LedgerContext addresses a key on a Ledger device
// (derivation m/44'/354'/account'/0'/offset').
type LedgerContext struct {
	AccountIndex  uint32 `json:"account_index"`
	AddressOffset uint32 `json:"address_offset"`
	// KnownSpecVersion is the newest runtime spec version the device firmware
	// knows about. A newer chain runtime requires sending the metadata blob.
	KnownSpecVersion uint32 `json:"known_spec_version"`
}

func (*LedgerContext) Kind() SignerKind  { return SignerLedger }
func (*LedgerContext) isSigningContext() {}

// QRRelayContext relays the payload to an air-gapped signer through a QR code.
type QRRelayContext struct {
	Channel string `json:"channel,omitempty"`
}

func (*QRRelayContext) Kind() SignerKind  { return SignerQR }
func (*QRRelayContext) isSigningContext() {}

// InjectedContext delegates signing to an external (injected) wallet.
type InjectedContext struct {
	Origin string `json:"origin"`
}

func (*InjectedContext) Kind() SignerKind  { return SignerInjected }
func (*InjectedContext) isSigningContext() {}
