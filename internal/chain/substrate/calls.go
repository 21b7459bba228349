package substrate

import (
	"context"
	"fmt"
	"math/big"

	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"dot-wallet/pkg/wallet/types"
)

// RewardDestination::Staked
const payeeStaked = gstypes.U8(0)

// pending 是 UnsignedTx.Raw 的具体类型，签名后用它组装 extrinsic
type pending struct {
	ext   gstypes.Extrinsic
	era   gstypes.ExtrinsicEra
	nonce gstypes.UCompact
	tip   gstypes.UCompact
}

// Build 按 Action 构造 call，并生成待签名的 payload
func (c *Client) Build(_ context.Context, req *types.Request) (*types.UnsignedTx, error) {
	meta, rv, _, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	call, err := c.newCall(meta, req)
	if err != nil {
		return nil, err
	}

	from, err := c.accountID(req.From)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	onchain, err := c.nonce(meta, from)
	if err != nil {
		return nil, err
	}
	nonce := uint64(onchain) + req.NonceOffset

	p := &pending{
		ext:   gstypes.NewExtrinsic(call),
		era:   gstypes.ExtrinsicEra{IsImmortalEra: true},
		nonce: gstypes.NewUCompactFromUInt(nonce),
		tip:   gstypes.NewUCompactFromUInt(0),
	}

	method, err := codec.Encode(p.ext.Method)
	if err != nil {
		return nil, fmt.Errorf("编码 call 失败: %w", err)
	}
	payload := gstypes.ExtrinsicPayloadV4{
		ExtrinsicPayloadV3: gstypes.ExtrinsicPayloadV3{
			Method:      method,
			Era:         p.era,
			Nonce:       p.nonce,
			Tip:         p.tip,
			SpecVersion: rv.SpecVersion,
			GenesisHash: c.genesis,
			BlockHash:   c.genesis, // immortal era 使用创世哈希
		},
		TransactionVersion: rv.TransactionVersion,
	}
	raw, err := codec.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("编码 payload 失败: %w", err)
	}

	return &types.UnsignedTx{
		Request:     req,
		Payload:     raw,
		SpecVersion: uint32(rv.SpecVersion),
		Nonce:       nonce,
		Raw:         p,
	}, nil
}

func (c *Client) newCall(meta *gstypes.Metadata, req *types.Request) (gstypes.Call, error) {
	amount := gstypes.NewUCompact(new(big.Int).Set(req.AmountOrZero()))

	switch req.Action {
	case types.ActionTransfer:
		dest, err := c.multiAddress(req.Target)
		if err != nil {
			return gstypes.Call{}, fmt.Errorf("target: %w", err)
		}
		return gstypes.NewCall(meta, "Balances.transfer_keep_alive", dest, amount)

	case types.ActionBond:
		return gstypes.NewCall(meta, "Staking.bond", amount, payeeStaked)

	case types.ActionBondExtra:
		return gstypes.NewCall(meta, "Staking.bond_extra", amount)

	case types.ActionUnbond:
		return gstypes.NewCall(meta, "Staking.unbond", amount)

	case types.ActionNominate:
		targets := make([]gstypes.MultiAddress, 0, len(req.Validators))
		for _, v := range req.Validators {
			addr, err := c.multiAddress(v)
			if err != nil {
				return gstypes.Call{}, fmt.Errorf("validator %s: %w", v, err)
			}
			targets = append(targets, addr)
		}
		return gstypes.NewCall(meta, "Staking.nominate", targets)

	case types.ActionChill:
		return gstypes.NewCall(meta, "Staking.chill")

	case types.ActionWithdrawUnbonded:
		// num_slashing_spans
		return gstypes.NewCall(meta, "Staking.withdraw_unbonded", gstypes.U32(0))

	case types.ActionContribute:
		// signature: Option<MultiSignature> = None
		return gstypes.NewCall(meta, "Crowdloan.contribute",
			gstypes.NewUCompactFromUInt(uint64(req.ParaID)), amount, gstypes.U8(0))

	default:
		return gstypes.Call{}, fmt.Errorf("unsupported action %s", req.Action)
	}
}
