package substrate

import (
	"context"
	"fmt"
	"math/big"

	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"go.uber.org/zap"

	"dot-wallet/pkg/address"
	"dot-wallet/pkg/wallet/types"
)

// QueryBlock 返回区块内的 extrinsic 列表，签名者已编码为本链 SS58 地址
func (c *Client) QueryBlock(_ context.Context, blockHash string) (*types.Block, error) {
	meta, _, _, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	hash, err := gstypes.NewHashFromHexString(blockHash)
	if err != nil {
		return nil, fmt.Errorf("invalid block hash %q: %w", blockHash, err)
	}

	signed, err := c.api.RPC.Chain.GetBlock(hash)
	if err != nil {
		return nil, fmt.Errorf("查询区块失败: %w", err)
	}

	fees := map[uint32]*big.Int{}
	if records, err := c.events(meta, hash); err != nil {
		c.log.Warn("解码区块事件失败，手续费未知", zap.String("block", blockHash), zap.Error(err))
	} else {
		for _, e := range records.TransactionPayment_TransactionFeePaid {
			if e.Phase.IsApplyExtrinsic {
				fees[e.Phase.AsApplyExtrinsic] = new(big.Int).Set(e.ActualFee.Int)
			}
		}
	}

	blk := &types.Block{
		Hash:   blockHash,
		Number: uint64(signed.Block.Header.Number),
	}
	for i, ext := range signed.Block.Extrinsics {
		h, err := extrinsicHash(ext)
		if err != nil {
			return nil, fmt.Errorf("extrinsic %d: %w", i, err)
		}
		item := types.BlockExtrinsic{Index: i, Hash: h, Fee: fees[uint32(i)]}
		if ext.IsSigned() && ext.Signature.Signer.IsID {
			id := ext.Signature.Signer.AsID
			if addr, err := address.Encode(id.ToBytes(), c.prefix); err == nil {
				item.Signer = addr
			}
		}
		blk.Extrinsics = append(blk.Extrinsics, item)
	}
	return blk, nil
}

func (c *Client) events(meta *gstypes.Metadata, block gstypes.Hash) (*gstypes.EventRecords, error) {
	key, err := gstypes.CreateStorageKey(meta, "System", "Events", nil)
	if err != nil {
		return nil, err
	}
	raw, err := c.api.RPC.State.GetStorageRaw(key, block)
	if err != nil {
		return nil, err
	}
	records := &gstypes.EventRecords{}
	if err := gstypes.EventRecordsRaw(*raw).DecodeEventRecords(meta, records); err != nil {
		return nil, err
	}
	return records, nil
}

// dispatchResult 在区块中定位交易并返回 System.ExtrinsicFailed 的原因，成功或无法判断时返回 nil
func (c *Client) dispatchResult(blockHash, txHash string) *types.DispatchError {
	meta, _, errs, err := c.snapshot()
	if err != nil {
		return nil
	}
	hash, err := gstypes.NewHashFromHexString(blockHash)
	if err != nil {
		return nil
	}
	signed, err := c.api.RPC.Chain.GetBlock(hash)
	if err != nil {
		c.log.Warn("查询区块失败", zap.String("block", blockHash), zap.Error(err))
		return nil
	}

	index := -1
	for i, ext := range signed.Block.Extrinsics {
		if h, err := extrinsicHash(ext); err == nil && h == txHash {
			index = i
			break
		}
	}
	if index < 0 {
		return nil
	}

	records, err := c.events(meta, hash)
	if err != nil {
		c.log.Warn("解码区块事件失败", zap.String("block", blockHash), zap.Error(err))
		return nil
	}
	for _, e := range records.System_ExtrinsicFailed {
		if e.Phase.IsApplyExtrinsic && int(e.Phase.AsApplyExtrinsic) == index {
			return errs.resolve(e.DispatchError)
		}
	}
	return nil
}

type errorVariant struct {
	name string
	docs string
}

type palletErrors struct {
	name     string
	variants map[uint8]errorVariant
}

// errorTable: pallet index -> error variants，从 metadata v14 的类型注册表构建
type errorTable map[uint8]palletErrors

func newErrorTable(meta *gstypes.Metadata) errorTable {
	t := errorTable{}
	if meta == nil || meta.Version != 14 {
		return t
	}
	lookup := map[int64]gstypes.Si1Type{}
	for _, pt := range meta.AsMetadataV14.Lookup.Types {
		lookup[pt.ID.Int64()] = pt.Type
	}
	for _, p := range meta.AsMetadataV14.Pallets {
		pe := palletErrors{name: string(p.Name), variants: map[uint8]errorVariant{}}
		if p.HasErrors {
			if ty, ok := lookup[p.Errors.Type.Int64()]; ok && ty.Def.IsVariant {
				for _, v := range ty.Def.Variant.Variants {
					var docs string
					if len(v.Docs) > 0 {
						docs = string(v.Docs[0])
					}
					pe.variants[uint8(v.Index)] = errorVariant{name: string(v.Name), docs: docs}
				}
			}
		}
		t[uint8(p.Index)] = pe
	}
	return t
}

func (t errorTable) lookup(pallet, index uint8) *types.DispatchError {
	p, ok := t[pallet]
	if !ok {
		return &types.DispatchError{Name: fmt.Sprintf("Module(%d, %d)", pallet, index)}
	}
	v, ok := p.variants[index]
	if !ok {
		return &types.DispatchError{Section: p.name, Name: fmt.Sprintf("Error(%d)", index)}
	}
	return &types.DispatchError{Section: p.name, Name: v.name, Docs: v.docs}
}

// resolve 把链上 DispatchError 转换为可读的 section.name
func (t errorTable) resolve(de gstypes.DispatchError) *types.DispatchError {
	switch {
	case de.IsModule:
		// ModuleError 编码为 [pallet index, error index, ...]
		enc, err := codec.Encode(de.ModuleError)
		if err != nil || len(enc) < 2 {
			return &types.DispatchError{Name: "Module"}
		}
		return t.lookup(enc[0], enc[1])
	case de.IsBadOrigin:
		return &types.DispatchError{Name: "BadOrigin"}
	case de.IsCannotLookup:
		return &types.DispatchError{Name: "CannotLookup"}
	case de.IsConsumerRemaining:
		return &types.DispatchError{Name: "ConsumerRemaining"}
	case de.IsNoProviders:
		return &types.DispatchError{Name: "NoProviders"}
	case de.IsTooManyConsumers:
		return &types.DispatchError{Name: "TooManyConsumers"}
	case de.IsToken:
		return &types.DispatchError{Section: "token", Name: "Token"}
	case de.IsArithmetic:
		return &types.DispatchError{Section: "arithmetic", Name: "Arithmetic"}
	case de.IsTransactional:
		return &types.DispatchError{Name: "Transactional"}
	default:
		return &types.DispatchError{Name: "Other"}
	}
}
