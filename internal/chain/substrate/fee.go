package substrate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"dot-wallet/pkg/address"
	"dot-wallet/pkg/wallet/types"
)

type runtimeDispatchInfo struct {
	Weight     json.RawMessage `json:"weight"`
	Class      string          `json:"class"`
	PartialFee json.RawMessage `json:"partialFee"`
}

// EstimateFee 用全零签名构造交易，调用 payment_queryInfo 查询 partialFee
func (c *Client) EstimateFee(_ context.Context, unsigned *types.UnsignedTx, signer string) (*big.Int, error) {
	pub, err := address.DecodeWithPrefix(signer, c.prefix)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	ext, err := attach(unsigned, &types.Signature{
		Scheme:    types.SchemeSr25519,
		Bytes:     make([]byte, 64),
		PublicKey: pub,
	})
	if err != nil {
		return nil, err
	}
	hexExt, err := codec.EncodeToHex(ext)
	if err != nil {
		return nil, fmt.Errorf("编码交易失败: %w", err)
	}

	var info runtimeDispatchInfo
	if err := c.api.Client.Call(&info, "payment_queryInfo", hexExt); err != nil {
		return nil, fmt.Errorf("payment_queryInfo: %w", err)
	}
	return parsePartialFee(info.PartialFee)
}

// parsePartialFee 兼容节点返回的三种形式: 十进制字符串、0x 十六进制字符串、JSON 数字
func parsePartialFee(raw json.RawMessage) (*big.Int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, fmt.Errorf("partialFee missing")
	}
	s = strings.Trim(s, `"`)

	fee := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		_, ok = fee.SetString(s[2:], 16)
	} else {
		_, ok = fee.SetString(s, 10)
	}
	if !ok || fee.Sign() < 0 {
		return nil, fmt.Errorf("invalid partialFee %q", s)
	}
	return fee, nil
}
