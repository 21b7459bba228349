package substrate

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"go.uber.org/zap"

	"dot-wallet/pkg/address"
	"dot-wallet/pkg/config"
	"dot-wallet/pkg/logger"
)

// 链上常量缺失时的默认值 (Polkadot runtime)
const defaultMaxNominations = 16

var ErrNotConnected = errors.New("substrate client not connected")

// Client 实现 lifecycle.ChainClient，一条链一个实例
type Client struct {
	chainID string
	prefix  uint16
	api     *gsrpc.SubstrateAPI
	log     *zap.Logger

	mu      sync.RWMutex
	meta    *gstypes.Metadata
	genesis gstypes.Hash
	runtime *gstypes.RuntimeVersion
	errs    errorTable

	maxNominations uint32
}

// Dial 连接节点并加载 metadata、创世哈希和 runtime 版本
func Dial(cfg config.ChainConfig) (*Client, error) {
	api, err := gsrpc.NewSubstrateAPI(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("连接节点失败 %s: %w", cfg.RpcUrl, err)
	}

	c := &Client{
		chainID: cfg.ID,
		prefix:  cfg.SS58Prefix,
		api:     api,
		log:     logger.Named("substrate").With(zap.String("chain", cfg.ID)),
	}

	genesis, err := api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return nil, fmt.Errorf("获取创世哈希失败: %w", err)
	}
	c.genesis = genesis

	if err := c.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) ChainID() string { return c.chainID }

// Refresh 重新加载 metadata 与 runtime 版本 (runtime 升级后调用)
func (c *Client) Refresh(_ context.Context) error {
	meta, err := c.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return fmt.Errorf("获取 metadata 失败: %w", err)
	}
	rv, err := c.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return fmt.Errorf("获取 runtime 版本失败: %w", err)
	}

	maxNom := uint32(defaultMaxNominations)
	if raw, err := meta.FindConstantValue("Staking", "MaxNominations"); err == nil {
		var v gstypes.U32
		if err := codec.Decode(raw, &v); err == nil && v > 0 {
			maxNom = uint32(v)
		}
	}

	c.mu.Lock()
	c.meta = meta
	c.runtime = rv
	c.errs = newErrorTable(meta)
	c.maxNominations = maxNom
	c.mu.Unlock()

	c.log.Info("runtime 已加载",
		zap.Uint32("spec_version", uint32(rv.SpecVersion)),
		zap.Uint32("max_nominations", maxNom))
	return nil
}

func (c *Client) snapshot() (*gstypes.Metadata, *gstypes.RuntimeVersion, errorTable, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.meta == nil || c.runtime == nil {
		return nil, nil, nil, ErrNotConnected
	}
	return c.meta, c.runtime, c.errs, nil
}

// SpecVersion 返回当前 runtime 的 spec version
func (c *Client) SpecVersion() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.runtime == nil {
		return 0
	}
	return uint32(c.runtime.SpecVersion)
}

// Metadata 返回 SCALE 编码后的 metadata (Ledger 新 runtime 需要)
func (c *Client) Metadata() ([]byte, error) {
	meta, _, _, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	return codec.Encode(meta)
}

// CheckAddress 校验地址属于本链的 SS58 前缀
func (c *Client) CheckAddress(addr string) error {
	return address.Validate(addr, c.prefix)
}

func (c *Client) accountID(addr string) (gstypes.AccountID, error) {
	pub, err := address.DecodeWithPrefix(addr, c.prefix)
	if err != nil {
		return gstypes.AccountID{}, err
	}
	var id gstypes.AccountID
	copy(id[:], pub)
	return id, nil
}

func (c *Client) multiAddress(addr string) (gstypes.MultiAddress, error) {
	pub, err := address.DecodeWithPrefix(addr, c.prefix)
	if err != nil {
		return gstypes.MultiAddress{}, err
	}
	return gstypes.NewMultiAddressFromAccountID(pub)
}

// MaxNominations 返回 Staking.MaxNominations，Refresh 时缓存
func (c *Client) MaxNominations(_ context.Context) (uint32, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.meta == nil {
		return 0, ErrNotConnected
	}
	return c.maxNominations, nil
}

// stakingLedger 只解码需要的前缀字段
type stakingLedger struct {
	Stash  gstypes.AccountID
	Total  gstypes.UCompact
	Active gstypes.UCompact
}

// ActiveStake 查询 Staking.Ledger(stash).active，未绑定返回 0
func (c *Client) ActiveStake(_ context.Context, addr string) (*big.Int, error) {
	meta, _, _, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	id, err := c.accountID(addr)
	if err != nil {
		return nil, err
	}
	key, err := gstypes.CreateStorageKey(meta, "Staking", "Ledger", id[:])
	if err != nil {
		return nil, fmt.Errorf("构造存储键失败: %w", err)
	}

	var ledger stakingLedger
	ok, err := c.api.RPC.State.GetStorageLatest(key, &ledger)
	if err != nil {
		return nil, fmt.Errorf("查询 Staking.Ledger 失败: %w", err)
	}
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set((*big.Int)(&ledger.Active)), nil
}

// nonce 读取 System.Account(addr).nonce
func (c *Client) nonce(meta *gstypes.Metadata, id gstypes.AccountID) (uint32, error) {
	key, err := gstypes.CreateStorageKey(meta, "System", "Account", id[:])
	if err != nil {
		return 0, fmt.Errorf("构造存储键失败: %w", err)
	}
	var info gstypes.AccountInfo
	ok, err := c.api.RPC.State.GetStorageLatest(key, &info)
	if err != nil {
		return 0, fmt.Errorf("查询 nonce 失败: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return uint32(info.Nonce), nil
}
