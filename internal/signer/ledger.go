package signer

import (
	"context"
	"errors"
	"fmt"

	"dot-wallet/internal/service/lifecycle"
	"dot-wallet/pkg/wallet/types"
)

// Ledger APDU 状态字
const (
	swDeviceLocked     uint16 = 0x5515
	swUserRejected     uint16 = 0x6986
	swUnknownSpecValue uint16 = 0x6a80
)

// DeviceError 设备返回的非 0x9000 状态字
type DeviceError struct {
	StatusWord uint16
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("ledger status 0x%04x", e.StatusWord)
}

// Unwrap 映射为生命周期错误，其他状态字 (断开、app 未打开) 可以重试
func (e *DeviceError) Unwrap() error {
	switch e.StatusWord {
	case swDeviceLocked:
		return lifecycle.ErrSignerLocked
	case swUserRejected:
		return lifecycle.ErrSignerRejected
	default:
		return nil
	}
}

// Device 是 Ledger Polkadot app 的传输层 (USB HID 或伴侣程序中转)
type Device interface {
	Sign(ctx context.Context, req *LedgerSignRequest) (*types.Signature, error)
}

// LedgerSignRequest 一次设备签名，Metadata 非空表示设备需要 metadata 才能解析交易
type LedgerSignRequest struct {
	ChainID       string
	From          string
	Action        types.Action
	AccountIndex  uint32
	AddressOffset uint32
	Payload       []byte
	SpecVersion   uint32
	Metadata      []byte
}

// MetadataSource 提供链当前的 metadata (substrate.Client 实现)
type MetadataSource interface {
	Metadata() ([]byte, error)
}

// LedgerSigner ed25519，runtime 比固件新时附带 metadata
type LedgerSigner struct {
	device      Device
	metadata    map[string]MetadataSource
	defaultSpec uint32
}

func NewLedgerSigner(device Device, metadata map[string]MetadataSource, knownSpecVersion uint32) *LedgerSigner {
	return &LedgerSigner{device: device, metadata: metadata, defaultSpec: knownSpecVersion}
}

func (s *LedgerSigner) Sign(ctx context.Context, tx *types.UnsignedTx, sc types.SigningContext) (*types.Signature, error) {
	lc, ok := sc.(*types.LedgerContext)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSigner, sc.Kind())
	}

	req := &LedgerSignRequest{
		ChainID:       tx.Request.ChainID,
		From:          tx.Request.From,
		Action:        tx.Request.Action,
		AccountIndex:  lc.AccountIndex,
		AddressOffset: lc.AddressOffset,
		Payload:       tx.Payload,
		SpecVersion:   tx.SpecVersion,
	}

	known := lc.KnownSpecVersion
	if known == 0 {
		known = s.defaultSpec
	}
	if tx.SpecVersion > known {
		src, ok := s.metadata[tx.Request.ChainID]
		if !ok {
			return nil, fmt.Errorf("runtime %d is newer than device firmware and no metadata for %s", tx.SpecVersion, tx.Request.ChainID)
		}
		meta, err := src.Metadata()
		if err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
		req.Metadata = meta
	}

	sig, err := s.device.Sign(ctx, req)
	if err != nil {
		var de *DeviceError
		if errors.As(err, &de) && de.StatusWord == swUnknownSpecValue && req.Metadata == nil {
			return nil, fmt.Errorf("%w: device requires metadata", err)
		}
		return nil, err
	}
	if sig.Scheme == "" {
		sig.Scheme = types.SchemeEd25519
	}
	if err := checkOwner(tx.Request.From, sig.PublicKey); err != nil {
		return nil, err
	}
	return sig, nil
}

// RelayDevice 把 Ledger 请求通过签名中转发给用户本机的伴侣程序
type RelayDevice struct {
	relay *RelaySigner
}

func NewRelayDevice(relay *RelaySigner) *RelayDevice {
	return &RelayDevice{relay: relay}
}

func (d *RelayDevice) Sign(ctx context.Context, req *LedgerSignRequest) (*types.Signature, error) {
	msg := &SignRequest{
		Kind:          types.SignerLedger,
		ChainID:       req.ChainID,
		From:          req.From,
		Action:        req.Action,
		Payload:       encodeHex(req.Payload),
		SpecVersion:   req.SpecVersion,
		AccountIndex:  req.AccountIndex,
		AddressOffset: req.AddressOffset,
	}
	if len(req.Metadata) > 0 {
		msg.Metadata = encodeHex(req.Metadata)
	}
	return d.relay.roundTrip(ctx, msg)
}
