package signer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dot-wallet/internal/service/lifecycle"
	"dot-wallet/internal/service/mq"
	"dot-wallet/pkg/logger"
	"dot-wallet/pkg/wallet/types"
)

var (
	ErrRelayTimeout   = errors.New("sign relay timed out")
	ErrUnknownRequest = errors.New("unknown sign request")
)

// SignRequest 发往外部签名方 (QR 冷钱包 / 注入式钱包 / Ledger 伴侣程序) 的消息
type SignRequest struct {
	ID          string           `json:"id"`
	Kind        types.SignerKind `json:"kind"`
	ChainID     string           `json:"chain_id"`
	From        string           `json:"from"`
	Action      types.Action     `json:"action"`
	Payload     string           `json:"payload"` // 0x hex
	SpecVersion uint32           `json:"spec_version"`
	Channel     string           `json:"channel,omitempty"`
	Origin      string           `json:"origin,omitempty"`

	// Ledger
	AccountIndex  uint32 `json:"account_index,omitempty"`
	AddressOffset uint32 `json:"address_offset,omitempty"`
	Metadata      string `json:"metadata,omitempty"`
}

// SignResponse 外部签名方的回复
type SignResponse struct {
	ID        string                `json:"id" binding:"required"`
	Scheme    types.SignatureScheme `json:"scheme"`
	Signature string                `json:"signature"`  // 0x hex
	PublicKey string                `json:"public_key"` // 0x hex
	Rejected  bool                  `json:"rejected"`
	Locked    bool                  `json:"locked"`
	Reason    string                `json:"reason"`
}

// Err 把拒绝/锁定回复映射为生命周期错误
func (r *SignResponse) Err() error {
	switch {
	case r.Locked:
		return fmt.Errorf("%w: %s", lifecycle.ErrSignerLocked, r.Reason)
	case r.Rejected:
		return fmt.Errorf("%w: %s", lifecycle.ErrSignerRejected, r.Reason)
	default:
		return nil
	}
}

func (r *SignResponse) decode() (*types.Signature, error) {
	sig, err := decodeHex(r.Signature)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	pub, err := decodeHex(r.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("public_key: %w", err)
	}
	return &types.Signature{Scheme: r.Scheme, Bytes: sig, PublicKey: pub}, nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// ResponseHub 把签名回复交给正在等待的请求
type ResponseHub struct {
	mu      sync.Mutex
	waiters map[string]chan *SignResponse
}

func NewResponseHub() *ResponseHub {
	return &ResponseHub{waiters: make(map[string]chan *SignResponse)}
}

func (h *ResponseHub) register(id string) chan *SignResponse {
	ch := make(chan *SignResponse, 1)
	h.mu.Lock()
	h.waiters[id] = ch
	h.mu.Unlock()
	return ch
}

func (h *ResponseHub) forget(id string) {
	h.mu.Lock()
	delete(h.waiters, id)
	h.mu.Unlock()
}

// Pending 报告 id 是否仍在等待回复
func (h *ResponseHub) Pending(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.waiters[id]
	return ok
}

// Deliver 每个请求只接受第一条回复
func (h *ResponseHub) Deliver(resp *SignResponse) error {
	h.mu.Lock()
	ch, ok := h.waiters[resp.ID]
	delete(h.waiters, resp.ID)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownRequest, resp.ID)
	}
	ch <- resp
	return nil
}

// Run 消费回复主题并投递给本实例的等待者，阻塞直到 ctx 结束
func (h *ResponseHub) Run(ctx context.Context, consumer mq.Consumer, topic string) error {
	log := logger.Named("signer.relay")
	return consumer.Subscribe(ctx, topic, func(msg *mq.Message) error {
		var resp SignResponse
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			log.Warn("签名回复格式错误", zap.String("msg_id", msg.ID), zap.Error(err))
			return nil
		}
		if err := h.Deliver(&resp); err != nil {
			// 其他实例的请求，或已超时
			log.Debug("忽略签名回复", zap.String("request_id", resp.ID))
		}
		return nil
	})
}

// RelaySigner 通过 MQ 把 payload 发给外部签名方并等待回复
type RelaySigner struct {
	producer mq.Producer
	hub      *ResponseHub
	topic    string
	timeout  time.Duration
	newID    func() string
	log      *zap.Logger
}

func NewRelaySigner(producer mq.Producer, hub *ResponseHub, topic string, timeout time.Duration) *RelaySigner {
	return &RelaySigner{
		producer: producer,
		hub:      hub,
		topic:    topic,
		timeout:  timeout,
		newID:    uuid.NewString,
		log:      logger.Named("signer.relay"),
	}
}

func (s *RelaySigner) Sign(ctx context.Context, tx *types.UnsignedTx, sc types.SigningContext) (*types.Signature, error) {
	req := &SignRequest{
		Kind:        sc.Kind(),
		ChainID:     tx.Request.ChainID,
		From:        tx.Request.From,
		Action:      tx.Request.Action,
		Payload:     encodeHex(tx.Payload),
		SpecVersion: tx.SpecVersion,
	}
	switch c := sc.(type) {
	case *types.QRRelayContext:
		req.Channel = c.Channel
	case *types.InjectedContext:
		req.Origin = c.Origin
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSigner, sc.Kind())
	}

	sig, err := s.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(tx.Request.From, sig.PublicKey); err != nil {
		return nil, err
	}
	return sig, nil
}

// roundTrip 发布请求并等待回复
func (s *RelaySigner) roundTrip(ctx context.Context, req *SignRequest) (*types.Signature, error) {
	req.ID = s.newID()
	ch := s.hub.register(req.ID)
	defer s.hub.forget(req.ID)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := s.producer.Publish(ctx, s.topic, req.From, payload); err != nil {
		return nil, fmt.Errorf("发布签名请求失败: %w", err)
	}
	s.log.Info("签名请求已发布", zap.String("request_id", req.ID), zap.String("kind", string(req.Kind)))

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if err := resp.Err(); err != nil {
			return nil, err
		}
		return resp.decode()
	case <-timer.C:
		return nil, ErrRelayTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
