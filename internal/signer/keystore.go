package signer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"

	"dot-wallet/internal/service/lifecycle"
	"dot-wallet/pkg/address"
	"dot-wallet/pkg/bip39"
	"dot-wallet/pkg/keystore"
	"dot-wallet/pkg/wallet/types"
)

// KeyLoader 按地址加载加密的 keystore
type KeyLoader interface {
	Load(address string) (*keystore.EncryptedKeyJSON, error)
}

// KeystoreSigner 用密码解锁本地 keystore，sr25519 签名
type KeystoreSigner struct {
	keys KeyLoader
}

func NewKeystoreSigner(keys KeyLoader) *KeystoreSigner {
	return &KeystoreSigner{keys: keys}
}

func (s *KeystoreSigner) Sign(ctx context.Context, tx *types.UnsignedTx, sc types.SigningContext) (*types.Signature, error) {
	pw, ok := sc.(*types.PasswordContext)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSigner, sc.Kind())
	}
	if pw.Wiped() {
		return nil, lifecycle.ErrIncorrectSecret
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	from := tx.Request.From
	k, err := s.keys.Load(from)
	if err != nil {
		return nil, err
	}
	if k.Scheme != "" && k.Scheme != string(types.SchemeSr25519) {
		return nil, fmt.Errorf("keystore scheme %s not supported", k.Scheme)
	}

	mnemonic, err := keystore.DecryptMnemonic(k, pw.Secret())
	if errors.Is(err, keystore.ErrMACMismatch) {
		return nil, lifecycle.ErrIncorrectSecret
	}
	if err != nil {
		return nil, err
	}

	pair, err := keyringPair(mnemonic, address.PrefixSubstrate)
	if err != nil {
		return nil, fmt.Errorf("派生密钥失败: %w", err)
	}
	if err := checkOwner(from, pair.PublicKey); err != nil {
		return nil, err
	}

	// 超过 256 字节的 payload 由 Sign 内部先做 blake2b-256
	sig, err := signature.Sign(tx.Payload, pair.URI)
	if err != nil {
		return nil, fmt.Errorf("签名失败: %w", err)
	}
	return &types.Signature{
		Scheme:    types.SchemeSr25519,
		Bytes:     sig,
		PublicKey: pair.PublicKey,
	}, nil
}

// AddressFromMnemonic 返回助记词对应的 sr25519 SS58 地址
func AddressFromMnemonic(mnemonic string, prefix uint16) (string, error) {
	pair, err := keyringPair(mnemonic, prefix)
	if err != nil {
		return "", err
	}
	return address.Encode(pair.PublicKey, prefix)
}

// keyringPair: gsrpc 只接受单字节的网络前缀
func keyringPair(mnemonic string, prefix uint16) (signature.KeyringPair, error) {
	if prefix > math.MaxUint8 {
		return signature.KeyringPair{}, fmt.Errorf("ss58 prefix %d not supported by the keyring", prefix)
	}
	return signature.KeyringPairFromSecret(bip39.Normalize(mnemonic), uint8(prefix))
}
