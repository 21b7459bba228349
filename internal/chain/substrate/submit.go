package substrate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/centrifuge/go-substrate-rpc-client/v4/rpc/author"
	gstypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"dot-wallet/internal/service/lifecycle"
	"dot-wallet/pkg/wallet/types"
)

var ErrForeignTx = errors.New("unsigned tx was not built by this client")

// attach 把签名组装进 extrinsic，返回副本
func attach(unsigned *types.UnsignedTx, sig *types.Signature) (gstypes.Extrinsic, error) {
	p, ok := unsigned.Raw.(*pending)
	if !ok || p == nil {
		return gstypes.Extrinsic{}, ErrForeignTx
	}

	signer, err := gstypes.NewMultiAddressFromAccountID(sig.PublicKey)
	if err != nil {
		return gstypes.Extrinsic{}, fmt.Errorf("signer: %w", err)
	}
	ms, err := multiSignature(sig)
	if err != nil {
		return gstypes.Extrinsic{}, err
	}

	ext := p.ext
	ext.Signature = gstypes.ExtrinsicSignatureV4{
		Signer:    signer,
		Signature: ms,
		Era:       p.era,
		Nonce:     p.nonce,
		Tip:       p.tip,
	}
	ext.Version |= gstypes.ExtrinsicBitSigned
	return ext, nil
}

func multiSignature(sig *types.Signature) (gstypes.MultiSignature, error) {
	switch sig.Scheme {
	case types.SchemeSr25519:
		if len(sig.Bytes) != 64 {
			return gstypes.MultiSignature{}, fmt.Errorf("sr25519 signature must be 64 bytes, got %d", len(sig.Bytes))
		}
		return gstypes.MultiSignature{IsSr25519: true, AsSr25519: gstypes.NewSignature(sig.Bytes)}, nil
	case types.SchemeEd25519:
		if len(sig.Bytes) != 64 {
			return gstypes.MultiSignature{}, fmt.Errorf("ed25519 signature must be 64 bytes, got %d", len(sig.Bytes))
		}
		return gstypes.MultiSignature{IsEd25519: true, AsEd25519: gstypes.NewSignature(sig.Bytes)}, nil
	case types.SchemeEcdsa:
		if len(sig.Bytes) != 65 {
			return gstypes.MultiSignature{}, fmt.Errorf("ecdsa signature must be 65 bytes, got %d", len(sig.Bytes))
		}
		return gstypes.MultiSignature{IsEcdsa: true, AsEcdsa: gstypes.NewEcdsaSignature(sig.Bytes)}, nil
	default:
		return gstypes.MultiSignature{}, fmt.Errorf("unsupported signature scheme %q", sig.Scheme)
	}
}

// extrinsicHash = blake2b-256(SCALE(extrinsic))
func extrinsicHash(ext gstypes.Extrinsic) (string, error) {
	enc, err := codec.Encode(ext)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(enc)
	return codec.HexEncodeToString(sum[:]), nil
}

// SubmitAndWatch 提交已签名交易并订阅状态
func (c *Client) SubmitAndWatch(ctx context.Context, tx *types.SignedTx) (lifecycle.Subscription, error) {
	ext, err := attach(tx.Unsigned, tx.Signature)
	if err != nil {
		return nil, err
	}
	hash, err := extrinsicHash(ext)
	if err != nil {
		return nil, fmt.Errorf("计算交易哈希失败: %w", err)
	}

	sub, err := c.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		return nil, fmt.Errorf("提交交易失败: %w", err)
	}

	s := &subscription{
		hash:   hash,
		inner:  sub,
		events: make(chan types.StatusEvent, 8),
		errs:   make(chan error, 1),
		quit:   make(chan struct{}),
	}
	c.log.Info("交易已提交", zap.String("tx_hash", hash), zap.String("action", tx.Unsigned.Request.Action.String()))
	go s.loop(c)
	return s, nil
}

// subscription 把 ExtrinsicStatus 转换为 StatusEvent，并补充 dispatch 结果
type subscription struct {
	hash   string
	inner  *author.ExtrinsicStatusSubscription
	events chan types.StatusEvent
	errs   chan error
	quit   chan struct{}
	once   sync.Once
}

func (s *subscription) TxHash() string                   { return s.hash }
func (s *subscription) Events() <-chan types.StatusEvent { return s.events }
func (s *subscription) Err() <-chan error                { return s.errs }

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.quit)
		s.inner.Unsubscribe()
	})
}

func (s *subscription) loop(c *Client) {
	for {
		select {
		case <-s.quit:
			return
		case err, ok := <-s.inner.Err():
			if !ok {
				return
			}
			select {
			case s.errs <- err:
			case <-s.quit:
			}
			return
		case st, ok := <-s.inner.Chan():
			if !ok {
				return
			}
			ev, known := statusEvent(st)
			if !known {
				continue
			}
			ev.TxHash = s.hash
			if ev.Kind == types.StatusEventInBlock || ev.Kind == types.StatusEventFinalized {
				ev.Dispatch = c.dispatchResult(ev.BlockHash, s.hash)
			}
			select {
			case s.events <- ev:
			case <-s.quit:
				return
			}
		}
	}
}

// statusEvent 把节点的状态映射为生命周期事件；Broadcast/Future/Retracted 等中间状态忽略
func statusEvent(st gstypes.ExtrinsicStatus) (types.StatusEvent, bool) {
	switch {
	case st.IsReady:
		return types.StatusEvent{Kind: types.StatusEventReady}, true
	case st.IsInBlock:
		return types.StatusEvent{Kind: types.StatusEventInBlock, BlockHash: st.AsInBlock.Hex()}, true
	case st.IsFinalized:
		return types.StatusEvent{Kind: types.StatusEventFinalized, BlockHash: st.AsFinalized.Hex()}, true
	case st.IsDropped:
		return types.StatusEvent{Kind: types.StatusEventDropped, Reason: "dropped from pool"}, true
	case st.IsInvalid:
		return types.StatusEvent{Kind: types.StatusEventDropped, Reason: "invalid"}, true
	case st.IsUsurped:
		return types.StatusEvent{Kind: types.StatusEventDropped, Reason: "usurped by " + st.AsUsurped.Hex()}, true
	case st.IsFinalityTimeout:
		return types.StatusEvent{Kind: types.StatusEventDropped, Reason: "finality timeout"}, true
	default:
		return types.StatusEvent{}, false
	}
}
