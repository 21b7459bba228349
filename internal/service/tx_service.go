package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"dot-wallet/internal/service/lifecycle"
	"dot-wallet/internal/service/mq"
	"dot-wallet/pkg/cache"
	"dot-wallet/pkg/config"
	"dot-wallet/pkg/errno"
	"dot-wallet/pkg/logger"
	"dot-wallet/pkg/monitor"
	"dot-wallet/pkg/utils/lock"
	"dot-wallet/pkg/wallet/types"
	"dot-wallet/pkg/wallet/units"
)

// Chain 一条已连接的链
type Chain struct {
	Config config.ChainConfig
	Client lifecycle.ChainClient
}

// HistoryRepo 历史记录的写入和查询
type HistoryRepo interface {
	lifecycle.HistoryStore
	List(ctx context.Context, owner, chainID string, limit int) ([]*types.HistoryEntry, error)
}

// TxDeps 构造 TxService 所需的依赖
type TxDeps struct {
	Chains        []Chain
	Signer        lifecycle.Signer
	History       HistoryRepo
	Locker        lock.DistributedLock
	Fees          cache.Cache
	Producer      mq.Producer
	ResponseTopic string
	Lifecycle     config.LifecycleConfig
	Clock         func() time.Time
}

// TxService 应用层门面: 每笔交易一个 Coordinator (flow)，按账户串行化确认
type TxService struct {
	chains        map[string]Chain
	signer        lifecycle.Signer
	history       HistoryRepo
	locker        lock.DistributedLock
	fees          cache.Cache
	producer      mq.Producer
	responseTopic string
	cfg           config.LifecycleConfig
	clock         func() time.Time

	flows *gocache.Cache
	feed  event.Feed

	root   context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

func NewTxService(d TxDeps) *TxService {
	chains := make(map[string]Chain, len(d.Chains))
	for _, ch := range d.Chains {
		chains[ch.Config.ID] = ch
	}
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	retention := d.Lifecycle.FlowRetention
	if retention <= 0 {
		retention = time.Hour
	}
	root, cancel := context.WithCancel(context.Background())

	return &TxService{
		chains:        chains,
		signer:        d.Signer,
		history:       d.History,
		locker:        d.Locker,
		fees:          d.Fees,
		producer:      d.Producer,
		responseTopic: d.ResponseTopic,
		cfg:           d.Lifecycle,
		clock:         clock,
		flows:         gocache.New(retention, retention/2),
		root:          root,
		cancel:        cancel,
		log:           logger.Named("tx"),
	}
}

// Close 停止所有仍在监听的 flow
func (s *TxService) Close() {
	s.cancel()
}

// TxInput 来自 API / CLI 的交易意图，金额为人类可读格式
type TxInput struct {
	ChainID    string
	Action     string
	From       string
	Amount     string
	Target     string
	Validators []string
	ParaID     uint32
	ExpiresAt  time.Time
}

// request 解析链和动作，并且只在这里做一次单位换算
func (s *TxService) request(in *TxInput) (*types.Request, Chain, error) {
	ch, ok := s.chains[in.ChainID]
	if !ok {
		return nil, Chain{}, errno.ErrUnknownChain
	}
	action, err := types.ParseAction(in.Action)
	if err != nil {
		return nil, Chain{}, fmt.Errorf("%w: %v", lifecycle.ErrInvalidRequest, err)
	}

	req := &types.Request{
		Action:     action,
		ChainID:    in.ChainID,
		From:       in.From,
		Target:     in.Target,
		Validators: in.Validators,
		ParaID:     in.ParaID,
		ExpiresAt:  in.ExpiresAt,
	}
	if action.HasAmount() {
		amount, err := units.ToMinimal(in.Amount, ch.Config.Decimals)
		if err != nil {
			return nil, Chain{}, fmt.Errorf("%w: amount: %v", lifecycle.ErrInvalidRequest, err)
		}
		req.Amount = amount
	}
	return req, ch, nil
}

// FeeQuote 手续费预估结果
type FeeQuote struct {
	ChainID string `json:"chain_id"`
	Action  string `json:"action"`
	Partial string `json:"partial_fee"` // 最小单位
	Display string `json:"display"`
}

func feeKey(req *types.Request) string {
	return cache.Key("fee", req.ChainID, req.Action.String(), req.From,
		req.AmountOrZero().String(), req.Target, strings.Join(req.Validators, ","),
		strconv.FormatUint(uint64(req.ParaID), 10))
}

// EstimateFee 不创建 flow，结果按请求内容短暂缓存
func (s *TxService) EstimateFee(ctx context.Context, in *TxInput) (*FeeQuote, error) {
	req, ch, err := s.request(in)
	if err != nil {
		return nil, err
	}

	key := feeKey(req)
	var quote FeeQuote
	if s.fees != nil {
		if err := s.fees.Get(ctx, key, &quote); err == nil {
			return &quote, nil
		}
	}

	est, err := lifecycle.EstimateFee(ctx, ch.Client, req)
	if err != nil {
		return nil, err
	}
	monitor.FeeEstimate(req.ChainID)

	quote = FeeQuote{
		ChainID: req.ChainID,
		Action:  req.Action.String(),
		Partial: est.Partial.String(),
		Display: units.Format(est.Partial, ch.Config.Decimals, ch.Config.Symbol),
	}
	if s.fees != nil {
		if err := s.fees.Set(ctx, key, quote, s.cfg.FeeCacheTTL); err != nil {
			s.log.Warn("fee cache set failed", zap.Error(err))
		}
	}
	return &quote, nil
}

// flow 一笔交易的服务端状态
type flow struct {
	id      string
	chain   Chain
	coord   *lifecycle.Coordinator
	created time.Time

	mu      sync.Mutex
	lastErr error
	updated time.Time
}

func (f *flow) setResult(err error, at time.Time) {
	f.mu.Lock()
	f.lastErr = err
	f.updated = at
	f.mu.Unlock()
}

func (f *flow) result() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Submit 创建 flow 并开始确认。
// 密码签名时等到签名结果 (提交或密码错误) 再返回；外部签名方只等到进入等待签名状态。
func (s *TxService) Submit(ctx context.Context, in *TxInput, sc types.SigningContext) (*FlowView, error) {
	req, ch, err := s.request(in)
	if err != nil {
		wipeContext(sc)
		return nil, err
	}
	if req.ExpiresAt.IsZero() && s.cfg.DefaultExpiry > 0 {
		req.ExpiresAt = s.clock().Add(s.cfg.DefaultExpiry)
	}

	f := &flow{
		id:      uuid.NewString(),
		chain:   ch,
		created: s.clock(),
	}
	f.updated = f.created
	f.coord = lifecycle.New(ch.Client, s.signer, s.history,
		lifecycle.WithID(f.id),
		lifecycle.WithClock(s.clock),
		lifecycle.WithFeed(&s.feed),
		lifecycle.WithLogger(s.log.Named("lifecycle")),
	)
	s.flows.Set(f.id, f, gocache.DefaultExpiration)

	if err := s.run(ctx, f, req, sc); err != nil {
		return s.view(f), err
	}
	return s.view(f), nil
}

// Sign 使用同一请求重试签名 (例如密码错误之后)
func (s *TxService) Sign(ctx context.Context, id string, sc types.SigningContext) (*FlowView, error) {
	if sc == nil {
		return nil, lifecycle.ErrInvalidRequest
	}
	f, err := s.flow(id)
	if err != nil {
		wipeContext(sc)
		return nil, err
	}
	req := f.coord.Request()
	if req == nil {
		wipeContext(sc)
		return nil, errno.ErrTxState
	}
	monitor.SignerRetry(string(sc.Kind()))
	if err := s.run(ctx, f, req, sc); err != nil {
		return s.view(f), err
	}
	return s.view(f), nil
}

// Cancel 只在签名完成前有效，之后是 no-op
func (s *TxService) Cancel(_ context.Context, id string) (*FlowView, error) {
	f, err := s.flow(id)
	if err != nil {
		return nil, err
	}
	f.coord.Cancel()
	return s.view(f), nil
}

func (s *TxService) Get(_ context.Context, id string) (*FlowView, error) {
	f, err := s.flow(id)
	if err != nil {
		return nil, err
	}
	return s.view(f), nil
}

func (s *TxService) flow(id string) (*flow, error) {
	v, ok := s.flows.Get(id)
	if !ok {
		return nil, errno.ErrFlowNotFound
	}
	return v.(*flow), nil
}

func accountLockKey(req *types.Request) string {
	return cache.Key("lock", "account", req.ChainID, req.From)
}

// run 在后台执行 Confirm，持有账户锁直到 Confirm 返回
func (s *TxService) run(ctx context.Context, f *flow, req *types.Request, sc types.SigningContext) error {
	key := accountLockKey(req)
	if s.locker != nil {
		ok, err := s.locker.Acquire(ctx, key, f.id, s.cfg.AccountLockTTL)
		if err != nil {
			wipeContext(sc)
			return fmt.Errorf("account lock: %w", err)
		}
		if !ok {
			wipeContext(sc)
			return errno.ErrTxBusy
		}
	}

	// 先订阅再启动，避免漏掉状态变化
	changes := make(chan lifecycle.StateChange, 16)
	sub := f.coord.SubscribeStates(changes)
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if s.locker != nil {
			defer func() {
				if err := s.locker.Release(context.Background(), key, f.id); err != nil {
					s.log.Warn("release account lock failed", zap.String("flow", f.id), zap.Error(err))
				}
			}()
		}
		_, err := f.coord.Confirm(s.root, req, sc)
		f.setResult(err, s.clock())
	}()

	untilSigned := sc != nil && sc.Kind() == types.SignerPassword
	settled := func(st lifecycle.State) bool {
		if st.Terminal() {
			return true
		}
		if untilSigned {
			return st >= lifecycle.StateSubmitting
		}
		return st >= lifecycle.StateAwaitingSignature
	}

	for {
		select {
		case <-done:
			return f.result()
		case ch := <-changes:
			if ch.ID == f.id && settled(ch.To) {
				return nil
			}
			// unstake-all: chill 提交时两笔都已签名
			if untilSigned && ch.ID == f.id+"/chill" && ch.To == lifecycle.StateSubmitting {
				return nil
			}
		case <-ctx.Done():
			// 调用方不再等待，flow 继续在后台运行
			return nil
		}
	}
}

func wipeContext(sc types.SigningContext) {
	if pw, ok := sc.(*types.PasswordContext); ok {
		pw.Wipe()
	}
}

// RelayResponse 把外部签名方的回复发布到回复主题，由持有请求的实例消费
func (s *TxService) RelayResponse(ctx context.Context, id string, payload []byte) error {
	if s.producer == nil {
		return errors.New("sign relay not configured")
	}
	return s.producer.Publish(ctx, s.responseTopic, id, payload)
}

// History 查询账户历史
func (s *TxService) History(ctx context.Context, owner, chainID string, limit int) ([]*HistoryView, error) {
	if _, ok := s.chains[chainID]; chainID != "" && !ok {
		return nil, errno.ErrUnknownChain
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := s.history.List(ctx, owner, chainID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*HistoryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.historyView(e))
	}
	return out, nil
}

// Run 消费 coordinator 状态广播: 记录指标，刷新 flow 的保留时间。阻塞直到 ctx 结束。
func (s *TxService) Run(ctx context.Context) {
	changes := make(chan lifecycle.StateChange, 256)
	sub := s.feed.Subscribe(changes)
	defer sub.Unsubscribe()

	started := map[string]time.Time{}
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				s.log.Warn("state feed closed", zap.Error(err))
			}
			return
		case ch := <-changes:
			s.track(ch, started)
		}
	}
}

func (s *TxService) track(ch lifecycle.StateChange, started map[string]time.Time) {
	v, ok := s.flows.Get(ch.ID)
	if !ok {
		// chill 子流程等，只记日志
		s.log.Debug("state change", zap.String("flow", ch.ID), zap.Stringer("to", ch.To))
		return
	}
	f := v.(*flow)
	f.mu.Lock()
	f.updated = ch.At
	f.mu.Unlock()
	s.flows.Set(f.id, f, gocache.DefaultExpiration)

	if ch.From == lifecycle.StateIdle && ch.To == lifecycle.StateAwaitingSignature {
		started[f.id] = ch.At
		monitor.FlowStarted()
	}
	if !ch.To.Terminal() {
		return
	}

	begin, ok := started[f.id]
	if ok {
		delete(started, f.id)
		monitor.FlowFinished()
	} else {
		begin = f.created
	}
	action := "unknown"
	if req := f.coord.Request(); req != nil {
		action = req.Action.String()
	}
	monitor.ObserveOutcome(f.chain.Config.ID, action, ch.To.String(), ch.At.Sub(begin))
}
