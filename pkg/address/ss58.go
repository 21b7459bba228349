package address

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

// 常用网络前缀
const (
	PrefixPolkadot  uint16 = 0
	PrefixKusama    uint16 = 2
	PrefixSubstrate uint16 = 42
)

var (
	ErrInvalidAddress  = errors.New("invalid ss58 address")
	ErrInvalidChecksum = errors.New("invalid ss58 checksum")
	ErrPrefixMismatch  = errors.New("ss58 prefix mismatch")
)

var ss58Pre = []byte("SS58PRE")

// SS58Generator 将 32 字节公钥 (AccountId) 编码为 SS58 地址
type SS58Generator struct {
	prefix uint16
}

func NewSS58Generator(prefix uint16) *SS58Generator {
	return &SS58Generator{prefix: prefix}
}

// PubKeyToAddress 将公钥字节转换为 SS58 地址
func (g *SS58Generator) PubKeyToAddress(pubKeyBytes []byte) (string, error) {
	return Encode(pubKeyBytes, g.prefix)
}

// Encode: base58(prefix || accountId || blake2b-512("SS58PRE" || prefix || accountId)[:2])
func Encode(accountID []byte, prefix uint16) (string, error) {
	if len(accountID) != 32 {
		return "", fmt.Errorf("%w: account id must be 32 bytes, got %d", ErrInvalidAddress, len(accountID))
	}
	if prefix > 16383 {
		return "", fmt.Errorf("%w: prefix %d out of range", ErrInvalidAddress, prefix)
	}

	body := append(encodePrefix(prefix), accountID...)
	sum := checksum(body)
	return base58.Encode(append(body, sum[:2]...)), nil
}

// Decode 返回 AccountId 和网络前缀
func Decode(addr string) ([]byte, uint16, error) {
	raw := base58.Decode(addr)
	if len(raw) < 3 {
		return nil, 0, ErrInvalidAddress
	}

	prefix, prefixLen, err := decodePrefix(raw)
	if err != nil {
		return nil, 0, err
	}

	// 只支持 32 字节 AccountId (sr25519 / ed25519)
	if len(raw) != prefixLen+32+2 {
		return nil, 0, fmt.Errorf("%w: unexpected length %d", ErrInvalidAddress, len(raw))
	}

	body := raw[:len(raw)-2]
	sum := checksum(body)
	if !bytes.Equal(sum[:2], raw[len(raw)-2:]) {
		return nil, 0, ErrInvalidChecksum
	}

	accountID := make([]byte, 32)
	copy(accountID, body[prefixLen:])
	return accountID, prefix, nil
}

// DecodeWithPrefix 要求地址属于指定网络
func DecodeWithPrefix(addr string, prefix uint16) ([]byte, error) {
	accountID, got, err := Decode(addr)
	if err != nil {
		return nil, err
	}
	if got != prefix {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrPrefixMismatch, prefix, got)
	}
	return accountID, nil
}

// Validate 检查地址格式和网络前缀
func Validate(addr string, prefix uint16) error {
	_, err := DecodeWithPrefix(addr, prefix)
	return err
}

func checksum(body []byte) [64]byte {
	return blake2b.Sum512(append(append([]byte{}, ss58Pre...), body...))
}

func encodePrefix(prefix uint16) []byte {
	if prefix < 64 {
		return []byte{byte(prefix)}
	}
	// 14-bit 前缀编码为两个字节
	first := byte((prefix&0x00fc)>>2) | 0x40
	second := byte(prefix>>8) | byte((prefix&0x0003)<<6)
	return []byte{first, second}
}

func decodePrefix(raw []byte) (uint16, int, error) {
	switch {
	case raw[0] < 64:
		return uint16(raw[0]), 1, nil
	case raw[0] < 128:
		lower := uint16(raw[0]&0x3f)<<2 | uint16(raw[1]>>6)
		upper := uint16(raw[1] & 0x3f)
		return lower | upper<<8, 2, nil
	default:
		return 0, 0, fmt.Errorf("%w: reserved prefix byte %d", ErrInvalidAddress, raw[0])
	}
}
