package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dot-wallet/pkg/logger"
	"dot-wallet/pkg/wallet/types"
)

// Coordinator 驱动单笔交易从确认到终态:
// build -> sign -> submitAndWatch -> inBlock -> finalized -> history
//
// 一个 Coordinator 只服务一次用户确认。密码错误时可以用同一请求再次调用 Confirm。
type Coordinator struct {
	id      string
	chain   ChainClient
	signer  Signer
	history HistoryStore
	clock   func() time.Time
	base    *zap.Logger
	log     *zap.Logger
	feed    *event.Feed

	mu         sync.Mutex
	state      State
	running    bool
	request    *types.Request
	outcome    *types.Outcome
	cancelSign context.CancelFunc

	// unstake-all: chill 由子 coordinator 完成，重试时复用
	chill *Coordinator
}

type Option func(*Coordinator)

func WithID(id string) Option {
	return func(c *Coordinator) { c.id = id }
}

func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) { c.clock = clock }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.base = l }
}

// WithFeed shares one feed across coordinators, e.g. for a flow tracker.
func WithFeed(feed *event.Feed) Option {
	return func(c *Coordinator) { c.feed = feed }
}

func New(chain ChainClient, signer Signer, history HistoryStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		id:      uuid.NewString(),
		chain:   chain,
		signer:  signer,
		history: history,
		clock:   time.Now,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.base == nil {
		c.base = logger.Named("lifecycle")
	}
	c.log = c.base.With(zap.String("flow", c.id))
	if c.feed == nil {
		c.feed = new(event.Feed)
	}
	return c
}

func (c *Coordinator) ID() string { return c.id }

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Outcome returns a copy of the terminal outcome, nil before one exists.
func (c *Coordinator) Outcome() *types.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome.Clone()
}

// Request returns the request bound by the first Confirm call.
func (c *Coordinator) Request() *types.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.request
}

// SubscribeStates delivers every StateChange to ch. The subscriber must keep
// draining ch, Feed.Send blocks until every subscriber has received.
func (c *Coordinator) SubscribeStates(ch chan<- StateChange) event.Subscription {
	return c.feed.Subscribe(ch)
}

// Confirm runs the whole lifecycle and blocks until a terminal state, or until
// the signer reports an incorrect secret.
//
// On-chain failures are reported through the outcome (Status=failed); the
// returned error is reserved for local failures: ErrInvalidRequest,
// ErrIncorrectSecret, ErrSignerLocked, ErrSignerRejected, ErrCancelled,
// ErrInvalidState and ErrBusy.
func (c *Coordinator) Confirm(ctx context.Context, req *types.Request, sc types.SigningContext) (*types.Outcome, error) {
	// 无论成功失败，密码在 Confirm 返回前都会被清除
	defer wipe(sc)
	return c.confirm(ctx, req, sc)
}

// Cancel is valid from Idle and AwaitingSignature. Anywhere else it is a no-op:
// once submitted, the extrinsic cannot be recalled. For unstake-all the parent
// stays in AwaitingSignature while its chill is on chain; Cancel is ignored
// until the chill reaches a terminal state.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	from := c.state
	if from != StateIdle && from != StateAwaitingSignature {
		c.mu.Unlock()
		c.log.Debug("cancel ignored", zap.Stringer("state", from))
		return
	}
	chill := c.chill
	if chill != nil && chill.inFlight() {
		c.mu.Unlock()
		c.log.Info("cancel ignored: chill in flight")
		return
	}
	c.state = StateCancelled
	cancelSign := c.cancelSign
	c.cancelSign = nil
	c.mu.Unlock()

	if cancelSign != nil {
		cancelSign()
	}
	if chill != nil {
		chill.Cancel()
	}
	c.log.Info("交易已取消", zap.Stringer("from", from))
	c.feed.Send(StateChange{ID: c.id, From: from, To: StateCancelled, At: c.clock()})
}

// EstimateFee builds the extrinsic and asks the chain for its partial fee.
// It never changes the coordinator state.
func (c *Coordinator) EstimateFee(ctx context.Context, req *types.Request) (*types.FeeEstimate, error) {
	return EstimateFee(ctx, c.chain, req)
}

// EstimateFee is advisory. The authoritative fee is Outcome.FeePaid.
func EstimateFee(ctx context.Context, chain ChainClient, req *types.Request) (*types.FeeEstimate, error) {
	if err := validate(ctx, chain, req); err != nil {
		return nil, err
	}
	unsigned, err := chain.Build(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", req.Action, err)
	}
	fee, err := chain.EstimateFee(ctx, unsigned, req.From)
	if err != nil {
		return nil, fmt.Errorf("estimate fee: %w", err)
	}
	return &types.FeeEstimate{ChainID: req.ChainID, Action: req.Action, Partial: fee}, nil
}

func (c *Coordinator) confirm(ctx context.Context, req *types.Request, sc types.SigningContext) (*types.Outcome, error) {
	if err := c.begin(req); err != nil {
		return nil, err
	}
	defer c.end()

	// 1. 过期检查: 不接触 signer 和 chain
	if !req.ExpiresAt.IsZero() && !c.clock().Before(req.ExpiresAt) {
		out := types.FailedOutcome(types.FailureExpired, "request expired before confirmation")
		if err := c.transition(StateExpired, out); err != nil {
			return nil, err
		}
		c.log.Warn("交易请求已过期", zap.Time("expires_at", req.ExpiresAt))
		return out, nil
	}

	// 2. 预检
	if err := validate(ctx, c.chain, req); err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, fmt.Errorf("%w: missing signing context", ErrInvalidRequest)
	}

	if !req.ExpiresAt.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadlineCause(ctx, req.ExpiresAt, errExpired)
		defer cancel()
	}

	if c.State() == StateIdle {
		if err := c.transition(StateAwaitingSignature, nil); err != nil {
			return nil, c.stateErr(err)
		}
	}

	// 3. unstake-all: chill 先签名 (nonce)，unbond 随后按 nonce+1 签名
	var chill *types.SignedTx
	if req.Action == types.ActionUnbond {
		out, signed, err := c.signChillIfUnstakeAll(ctx, req, sc)
		if err != nil || out != nil {
			return out, err
		}
		chill = signed
	}
	buildReq := req
	if chill != nil {
		buildReq = req.WithNonceOffset(1)
	}

	// 4. 构建 + 签名 (只调用一次 signer)
	signed, out, err := c.prepare(ctx, buildReq, sc, true)
	if err != nil || out != nil {
		if chill != nil && c.State() != StateAwaitingSignature {
			c.chill.Cancel()
		}
		return out, err
	}

	// 5. 密码已清除，chill 终结后才提交 unbond
	if chill != nil {
		if out, err := c.dispatchChill(ctx, chill); err != nil || out != nil {
			return out, err
		}
	}

	// 6. 提交 + 监听
	return c.dispatch(ctx, req, signed)
}

// prepare 构建并签名，不提交。outcome 非 nil 表示提交前已进入终态。
func (c *Coordinator) prepare(ctx context.Context, req *types.Request, sc types.SigningContext, owner bool) (*types.SignedTx, *types.Outcome, error) {
	unsigned, err := c.chain.Build(ctx, req)
	if err != nil {
		out, err := c.failBeforeSubmit(ctx, fmt.Errorf("build %s: %w", req.Action, err))
		return nil, out, err
	}
	sig, err := c.sign(ctx, unsigned, sc, owner)
	if err != nil {
		out, err := c.signFailed(ctx, err)
		return nil, out, err
	}
	return &types.SignedTx{Unsigned: unsigned, Signature: sig}, nil, nil
}

func (c *Coordinator) dispatch(ctx context.Context, req *types.Request, tx *types.SignedTx) (*types.Outcome, error) {
	if err := c.transition(StateSubmitting, nil); err != nil {
		return nil, c.stateErr(err)
	}
	sub, err := c.chain.SubmitAndWatch(ctx, tx)
	if err != nil {
		out := types.FailedOutcome(types.FailureTransport, "submit failed: "+err.Error())
		return c.finish(ctx, req, StateFailed, out)
	}

	state, out := c.watch(ctx, req, sub)
	return c.finish(ctx, req, state, out)
}

func (c *Coordinator) begin(req *types.Request) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrBusy
	}
	switch c.state {
	case StateIdle:
		c.request = req
	case StateAwaitingSignature:
		// 密码错误后的重试必须是同一笔请求
		if !c.request.SameIntent(req) {
			return fmt.Errorf("%w: retry must use the original request", ErrInvalidState)
		}
	case StateCancelled:
		return ErrCancelled
	default:
		return fmt.Errorf("%w: %s", ErrInvalidState, c.state)
	}
	c.running = true
	return nil
}

func (c *Coordinator) end() {
	c.mu.Lock()
	c.running = false
	c.cancelSign = nil
	c.mu.Unlock()
}

// inFlight: 已提交但尚未到达终态
func (c *Coordinator) inFlight() bool {
	s := c.State()
	return s == StateSubmitting || s == StateIncluded
}

// transition 校验迁移表并广播状态变化 (在锁外发送)
func (c *Coordinator) transition(to State, out *types.Outcome) error {
	c.mu.Lock()
	from := c.state
	if !canTransition(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	c.state = to
	if out != nil {
		c.outcome = out.Clone()
	}
	c.mu.Unlock()

	c.log.Debug("state transition", zap.Stringer("from", from), zap.Stringer("to", to))
	c.feed.Send(StateChange{ID: c.id, From: from, To: to, Outcome: out.Clone(), At: c.clock()})
	return nil
}

// stateErr 把并发 Cancel 造成的迁移失败映射为 ErrCancelled
func (c *Coordinator) stateErr(err error) error {
	if c.State() == StateCancelled {
		return ErrCancelled
	}
	return err
}

func (c *Coordinator) sign(ctx context.Context, unsigned *types.UnsignedTx, sc types.SigningContext, owner bool) (*types.Signature, error) {
	signCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.state != StateAwaitingSignature {
		c.mu.Unlock()
		return nil, ErrCancelled
	}
	c.cancelSign = cancel
	c.mu.Unlock()

	sig, err := c.signer.Sign(signCtx, unsigned, sc)

	c.mu.Lock()
	c.cancelSign = nil
	cancelled := c.state == StateCancelled
	c.mu.Unlock()

	// 签名结束 (成功或失败) 立即清除密码
	if owner {
		wipe(sc)
	}

	if cancelled {
		return nil, ErrCancelled
	}
	if err == nil && sig == nil {
		err = errors.New("signer returned no signature")
	}
	return sig, err
}

func (c *Coordinator) signFailed(ctx context.Context, err error) (*types.Outcome, error) {
	switch {
	case errors.Is(err, ErrCancelled):
		return nil, ErrCancelled

	case errors.Is(err, ErrIncorrectSecret):
		// 保持 AwaitingSignature，由调用方重新输入密码
		c.log.Info("密码错误，等待重试")
		return nil, err

	case errors.Is(err, ErrSignerLocked), errors.Is(err, ErrSignerRejected):
		c.log.Info("签名未完成，流程取消", zap.Error(err))
		if terr := c.transition(StateCancelled, nil); terr != nil {
			return nil, c.stateErr(terr)
		}
		return nil, err

	case expired(ctx):
		out := types.FailedOutcome(types.FailureExpired, "request expired while awaiting signature")
		if terr := c.transition(StateExpired, out); terr != nil {
			return nil, c.stateErr(terr)
		}
		return out, nil

	case ctx.Err() != nil:
		if terr := c.transition(StateCancelled, nil); terr != nil {
			return nil, c.stateErr(terr)
		}
		return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())

	default:
		// 设备断开等: 仍停留在 AwaitingSignature，允许重试
		c.log.Warn("签名失败", zap.Error(err))
		return nil, fmt.Errorf("sign: %w", err)
	}
}

// failBeforeSubmit 处理提交前的链侧错误，未提交不写历史
func (c *Coordinator) failBeforeSubmit(ctx context.Context, err error) (*types.Outcome, error) {
	state, out := StateFailed, types.FailedOutcome(types.FailureTransport, err.Error())
	if expired(ctx) {
		state, out = StateExpired, types.FailedOutcome(types.FailureExpired, "request expired before submission")
	}
	if terr := c.transition(state, out); terr != nil {
		return nil, c.stateErr(terr)
	}
	c.log.Warn("交易未提交即失败", zap.String("reason", out.FailureReason))
	return out, nil
}

// watch 等待终态。订阅在任何退出路径上都会被取消。
func (c *Coordinator) watch(ctx context.Context, req *types.Request, sub Subscription) (State, *types.Outcome) {
	defer sub.Unsubscribe()

	txHash := sub.TxHash()
	failed := func(kind types.FailureKind, reason string) (State, *types.Outcome) {
		out := types.FailedOutcome(kind, reason)
		out.TxHash = txHash
		return StateFailed, out
	}

	var blockHash string
	for {
		select {
		case <-ctx.Done():
			if expired(ctx) {
				_, out := failed(types.FailureExpired, "request expired before finalization")
				out.BlockHash = blockHash
				return StateExpired, out
			}
			// 只是停止监听，链上可能仍会打包
			return failed(types.FailureTransport, "stopped listening: "+ctx.Err().Error())

		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return failed(types.FailureTransport, err.Error())

		case ev, ok := <-sub.Events():
			if !ok {
				return failed(types.FailureTransport, "subscription closed")
			}

			switch ev.Kind {
			case types.StatusEventReady:
				c.log.Debug("extrinsic ready", zap.String("tx_hash", txHash))

			case types.StatusEventInBlock:
				blockHash = ev.BlockHash
				if ev.Dispatch != nil {
					return dispatchFailed(txHash, ev)
				}
				if c.State() == StateSubmitting {
					_ = c.transition(StateIncluded, nil)
				}
				c.log.Info("交易已打包", zap.String("tx_hash", txHash), zap.String("block", ev.BlockHash))

			case types.StatusEventFinalized:
				if ev.Dispatch != nil {
					return dispatchFailed(txHash, ev)
				}
				return StateFinalized, c.resolveFinalized(ctx, req, ev.BlockHash, txHash)

			case types.StatusEventDropped:
				reason := ev.Reason
				if reason == "" {
					reason = "extrinsic dropped from pool"
				}
				return failed(types.FailureTransport, reason)
			}
		}
	}
}

func dispatchFailed(txHash string, ev types.StatusEvent) (State, *types.Outcome) {
	out := types.FailedOutcome(types.FailureDispatch, ev.Dispatch.Error())
	out.TxHash = txHash
	out.BlockHash = ev.BlockHash
	out.Dispatch = ev.Dispatch
	return StateFailed, out
}

// resolveFinalized 扫描终结区块，取第一个签名者等于 From 的 extrinsic。
// 同一区块内同一账户的多笔交易只解析第一笔。
func (c *Coordinator) resolveFinalized(ctx context.Context, req *types.Request, blockHash, txHash string) *types.Outcome {
	out := &types.Outcome{
		Status:         types.StatusFinalized,
		TxHash:         txHash,
		BlockHash:      blockHash,
		ExtrinsicIndex: -1,
	}

	block, err := c.chain.QueryBlock(ctx, blockHash)
	if err != nil {
		c.log.Warn("查询终结区块失败，使用提交时的哈希", zap.String("block", blockHash), zap.Error(err))
		return out
	}

	ext, ok := block.FirstSignedBy(req.From)
	if !ok {
		c.log.Warn("终结区块中未找到匹配的 extrinsic", zap.String("block", blockHash), zap.String("from", req.From))
		return out
	}
	if ext.Hash != "" {
		out.TxHash = ext.Hash
	}
	out.ExtrinsicIndex = ext.Index
	out.FeePaid = ext.Fee
	return out
}

// finish 进入终态并写入唯一的一条历史记录
func (c *Coordinator) finish(ctx context.Context, req *types.Request, state State, out *types.Outcome) (*types.Outcome, error) {
	if err := c.transition(state, out); err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("action", req.Action.String()),
		zap.String("status", string(out.Status)),
		zap.String("tx_hash", out.TxHash),
	}
	if out.Succeeded() {
		c.log.Info("交易已终结", fields...)
	} else {
		c.log.Warn("交易失败", append(fields, zap.String("reason", out.FailureReason))...)
	}

	entry := types.NewHistoryEntry(req, out, c.clock())
	if err := c.history.Append(context.WithoutCancel(ctx), req.From, entry); err != nil {
		// 交易已上链，历史写入失败不影响结果
		c.log.Error("写入交易历史失败", zap.Error(err))
	}
	return out.Clone(), nil
}

// signChillIfUnstakeAll 在 unbond 全部活跃质押时，由子 coordinator 构建并签名 chill。
// 返回 nil SignedTx 表示不需要 chill。
func (c *Coordinator) signChillIfUnstakeAll(ctx context.Context, req *types.Request, sc types.SigningContext) (*types.Outcome, *types.SignedTx, error) {
	c.mu.Lock()
	child := c.chill
	c.mu.Unlock()

	if child == nil {
		active, err := c.chain.ActiveStake(ctx, req.From)
		if err != nil {
			out, err := c.failBeforeSubmit(ctx, fmt.Errorf("query active stake: %w", err))
			return out, nil, err
		}
		if active.Sign() <= 0 || active.Cmp(req.AmountOrZero()) != 0 {
			return nil, nil, nil
		}

		c.log.Info("unbond 全部质押，先执行 chill")
		child = New(c.chain, c.signer, c.history,
			WithID(c.id+"/chill"),
			WithClock(c.clock),
			WithLogger(c.base),
			WithFeed(c.feed),
		)
		c.mu.Lock()
		c.chill = child
		c.mu.Unlock()
	}

	chillReq := req.Derive(types.ActionChill)
	if err := child.begin(chillReq); err != nil {
		return nil, nil, err
	}
	defer child.end()
	if child.State() == StateIdle {
		if err := child.transition(StateAwaitingSignature, nil); err != nil {
			return nil, nil, child.stateErr(err)
		}
	}

	signed, out, err := child.prepare(ctx, chillReq, sc, false)
	switch {
	case err != nil && child.State() == StateCancelled:
		// 签名方拒绝或调用方取消: 整个流程一起取消
		if c.State() == StateAwaitingSignature {
			_ = c.transition(StateCancelled, nil)
		}
		if errors.Is(err, ErrSignerLocked) || errors.Is(err, ErrSignerRejected) {
			return nil, nil, err
		}
		return nil, nil, ErrCancelled
	case err != nil:
		out, err := c.signFailed(ctx, err)
		return out, nil, err
	case out != nil:
		out, err := c.chillFailed(out)
		return out, nil, err
	}
	return nil, signed, nil
}

// dispatchChill 提交已签名的 chill 并等待终态
func (c *Coordinator) dispatchChill(ctx context.Context, tx *types.SignedTx) (*types.Outcome, error) {
	c.mu.Lock()
	child := c.chill
	c.mu.Unlock()

	chillReq := tx.Unsigned.Request
	if err := child.begin(chillReq); err != nil {
		return nil, err
	}
	defer child.end()

	out, err := child.dispatch(ctx, chillReq, tx)
	if err != nil {
		return nil, c.stateErr(err)
	}
	if !out.Succeeded() {
		return c.chillFailed(out)
	}
	return nil, nil
}

// chillFailed 把 chill 的失败转为父流程的终态，unbond 不会被提交
func (c *Coordinator) chillFailed(out *types.Outcome) (*types.Outcome, error) {
	state := StateFailed
	if out.FailureKind == types.FailureExpired {
		state = StateExpired
	}
	failed := out.Clone()
	failed.FailureReason = "chill failed: " + out.FailureReason
	if terr := c.transition(state, failed); terr != nil {
		return nil, c.stateErr(terr)
	}
	return failed, nil
}

var errExpired = errors.New("request expired")

// expired 区分请求自身的过期和调用方取消
func expired(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), errExpired)
}

func wipe(sc types.SigningContext) {
	if pw, ok := sc.(*types.PasswordContext); ok {
		pw.Wipe()
	}
}
