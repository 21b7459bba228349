package lifecycle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dot-wallet/pkg/wallet/types"
)

func newTestCoordinator(chain *fakeChain, signer *fakeSigner, history *fakeHistory, opts ...Option) *Coordinator {
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	return New(chain, signer, history, opts...)
}

func transferRequest() *types.Request {
	return &types.Request{
		Action:  types.ActionTransfer,
		ChainID: "polkadot",
		From:    alice,
		Target:  bob,
		Amount:  big.NewInt(1_000_000_000_000),
	}
}

func drain(ch chan StateChange) []StateChange {
	var out []StateChange
	for {
		select {
		case sc := <-ch:
			out = append(out, sc)
		default:
			return out
		}
	}
}

func TestConfirm_TransferFinalized(t *testing.T) {
	chain, signer, history := newFakeChain(), &fakeSigner{}, &fakeHistory{}
	// 链上立即报告 finalized
	chain.scripts[types.ActionTransfer] = []types.StatusEvent{
		{Kind: types.StatusEventFinalized, BlockHash: "0xblock"},
	}
	c := newTestCoordinator(chain, signer, history)

	states := make(chan StateChange, 16)
	sub := c.SubscribeStates(states)
	defer sub.Unsubscribe()

	out, err := c.Confirm(context.Background(), transferRequest(), types.NewPasswordContext("pw"))
	require.NoError(t, err)

	assert.Equal(t, types.StatusFinalized, out.Status)
	assert.NotEmpty(t, out.TxHash)
	assert.Equal(t, "0xfromalice", out.TxHash)
	assert.Equal(t, "0xblock", out.BlockHash)
	assert.Equal(t, 2, out.ExtrinsicIndex)
	assert.Equal(t, big.NewInt(15_000_000), out.FeePaid)
	assert.Equal(t, StateFinalized, c.State())

	assert.Equal(t, 1, signer.Calls())
	assert.Equal(t, 1, chain.count("submit:"))
	require.Len(t, chain.subs, 1)
	assert.EqualValues(t, 1, chain.subs[0].unsubscribed.Load())

	entries := history.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, types.StatusFinalized, entries[0].Status)
	assert.Equal(t, alice, entries[0].Owner)
	assert.Equal(t, "0xfromalice", entries[0].TxHash)

	// 恰好一个终态，Submitting 之后不再回到 AwaitingSignature
	var seq []State
	for _, sc := range drain(states) {
		seq = append(seq, sc.To)
	}
	assert.Equal(t, []State{StateAwaitingSignature, StateSubmitting, StateFinalized}, seq)
}

func TestConfirm_NeverReentersAwaitingSignature(t *testing.T) {
	requests := []*types.Request{
		transferRequest(),
		{Action: types.ActionBond, ChainID: "polkadot", From: alice, Amount: big.NewInt(10)},
		{Action: types.ActionBondExtra, ChainID: "polkadot", From: alice, Amount: big.NewInt(10)},
		{Action: types.ActionNominate, ChainID: "polkadot", From: alice, Validators: []string{bob, carol}},
		{Action: types.ActionChill, ChainID: "polkadot", From: alice},
		{Action: types.ActionWithdrawUnbonded, ChainID: "polkadot", From: alice},
		{Action: types.ActionContribute, ChainID: "polkadot", From: alice, Amount: big.NewInt(10), ParaID: 2004},
	}

	for _, req := range requests {
		t.Run(req.Action.String(), func(t *testing.T) {
			c := newTestCoordinator(newFakeChain(), &fakeSigner{}, &fakeHistory{})
			states := make(chan StateChange, 16)
			sub := c.SubscribeStates(states)
			defer sub.Unsubscribe()

			out, err := c.Confirm(context.Background(), req, &types.InjectedContext{Origin: "test"})
			require.NoError(t, err)
			assert.Equal(t, types.StatusFinalized, out.Status)

			submitting, terminals := false, 0
			for _, sc := range drain(states) {
				if sc.To == StateSubmitting {
					submitting = true
				}
				if submitting {
					assert.NotEqual(t, StateAwaitingSignature, sc.To)
				}
				if sc.To.Terminal() {
					terminals++
				}
			}
			assert.True(t, submitting)
			assert.Equal(t, 1, terminals)
		})
	}
}

func TestConfirm_FirstMatchingExtrinsicWins(t *testing.T) {
	chain := newFakeChain()
	chain.block = &types.Block{
		Hash: "0xblock",
		Extrinsics: []types.BlockExtrinsic{
			{Index: 0, Hash: "0xinherent"},
			{Index: 1, Hash: "0xfirst", Signer: alice, Fee: big.NewInt(7)},
			{Index: 2, Hash: "0xsecond", Signer: alice, Fee: big.NewInt(9)},
		},
	}
	c := newTestCoordinator(chain, &fakeSigner{}, &fakeHistory{})

	out, err := c.Confirm(context.Background(), transferRequest(), types.NewPasswordContext("pw"))
	require.NoError(t, err)
	assert.Equal(t, "0xfirst", out.TxHash)
	assert.Equal(t, 1, out.ExtrinsicIndex)
	assert.Equal(t, big.NewInt(7), out.FeePaid)
}

func TestConfirm_FinalizedWithoutMatchFallsBackToSubmissionHash(t *testing.T) {
	chain := newFakeChain()
	chain.blockErr = errors.New("rpc timeout")
	c := newTestCoordinator(chain, &fakeSigner{}, &fakeHistory{})

	out, err := c.Confirm(context.Background(), transferRequest(), types.NewPasswordContext("pw"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFinalized, out.Status)
	assert.Equal(t, "0xsubmitted-transfer-0", out.TxHash)
	assert.Equal(t, -1, out.ExtrinsicIndex)
	assert.Nil(t, out.FeePaid)
}

func TestConfirm_IncorrectSecretAllowsRetry(t *testing.T) {
	chain, history := newFakeChain(), &fakeHistory{}
	signer := &fakeSigner{errs: []error{ErrIncorrectSecret}}
	c := newTestCoordinator(chain, signer, history)
	req := transferRequest()

	out, err := c.Confirm(context.Background(), req, types.NewPasswordContext("wrong"))
	assert.ErrorIs(t, err, ErrIncorrectSecret)
	assert.Nil(t, out)
	assert.Equal(t, StateAwaitingSignature, c.State())
	assert.Zero(t, chain.count("submit:"))
	assert.Empty(t, history.Entries())

	// 只能用同一笔请求重试
	other := transferRequest()
	other.Amount = big.NewInt(1)
	_, err = c.Confirm(context.Background(), other, types.NewPasswordContext("right"))
	assert.ErrorIs(t, err, ErrInvalidState)

	out, err = c.Confirm(context.Background(), req, types.NewPasswordContext("right"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFinalized, out.Status)
	assert.Equal(t, 1, chain.count("submit:"))
	assert.Equal(t, []string{"wrong", "right"}, signer.secrets)
}

func TestConfirm_PasswordWipedAfterSigning(t *testing.T) {
	signer := &fakeSigner{errs: []error{ErrIncorrectSecret}}
	c := newTestCoordinator(newFakeChain(), signer, &fakeHistory{})

	pw := types.NewPasswordContext("wrong")
	_, err := c.Confirm(context.Background(), transferRequest(), pw)
	require.ErrorIs(t, err, ErrIncorrectSecret)
	assert.True(t, pw.Wiped())

	pw = types.NewPasswordContext("secret")
	_, err = c.Confirm(context.Background(), transferRequest(), pw)
	require.NoError(t, err)
	assert.True(t, pw.Wiped())
	assert.Equal(t, "PasswordContext(***)", pw.String())
}

func TestConfirm_DispatchErrorRecordsFailedHistory(t *testing.T) {
	chain, history := newFakeChain(), &fakeHistory{}
	chain.scripts[types.ActionTransfer] = []types.StatusEvent{
		{Kind: types.StatusEventReady},
		{
			Kind:      types.StatusEventInBlock,
			BlockHash: "0xblock",
			Dispatch: &types.DispatchError{
				Section: "balances",
				Name:    "InsufficientBalance",
				Docs:    "Balance too low to send value.",
			},
		},
	}
	c := newTestCoordinator(chain, &fakeSigner{}, history)

	out, err := c.Confirm(context.Background(), transferRequest(), types.NewPasswordContext("pw"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, out.Status)
	assert.Equal(t, types.FailureDispatch, out.FailureKind)
	assert.NotEmpty(t, out.FailureReason)
	assert.Contains(t, out.FailureReason, "InsufficientBalance")
	require.NotNil(t, out.Dispatch)
	assert.Equal(t, "balances", out.Dispatch.Section)
	assert.Equal(t, StateFailed, c.State())

	entries := history.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, types.StatusFailed, entries[0].Status)
	assert.Equal(t, 0, chain.count("queryBlock"))
	assert.EqualValues(t, 1, chain.subs[0].unsubscribed.Load())
}

func TestConfirm_ExpiredBeforeCall(t *testing.T) {
	chain, signer, history := newFakeChain(), &fakeSigner{}, &fakeHistory{}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCoordinator(chain, signer, history, WithClock(func() time.Time { return now }))

	req := transferRequest()
	req.ExpiresAt = now.Add(-time.Second)

	out, err := c.Confirm(context.Background(), req, types.NewPasswordContext("pw"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, out.Status)
	assert.Equal(t, types.FailureExpired, out.FailureKind)
	assert.NotEmpty(t, out.FailureReason)
	assert.Equal(t, StateExpired, c.State())

	assert.Zero(t, signer.Calls())
	assert.Empty(t, chain.Calls())
	assert.Zero(t, chain.checks)
	assert.Empty(t, history.Entries())
}

func TestConfirm_ExpiresWhileWatching(t *testing.T) {
	chain, history := newFakeChain(), &fakeHistory{}
	// 只有 ready，没有后续事件
	chain.scripts[types.ActionTransfer] = []types.StatusEvent{{Kind: types.StatusEventReady}}
	c := newTestCoordinator(chain, &fakeSigner{}, history)

	req := transferRequest()
	req.ExpiresAt = time.Now().Add(50 * time.Millisecond)

	out, err := c.Confirm(context.Background(), req, types.NewPasswordContext("pw"))
	require.NoError(t, err)
	assert.Equal(t, types.FailureExpired, out.FailureKind)
	assert.Equal(t, StateExpired, c.State())
	assert.EqualValues(t, 1, chain.subs[0].unsubscribed.Load())

	// 已经提交，所以仍然写一条历史
	require.Len(t, history.Entries(), 1)
	assert.Equal(t, types.StatusFailed, history.Entries()[0].Status)
}

func TestConfirm_UnstakeAllChillsBeforeUnbond(t *testing.T) {
	chain, history := newFakeChain(), &fakeHistory{}
	chain.activeStake = big.NewInt(5_000_000_000_000)
	pw := types.NewPasswordContext("pw")
	wipedAtSubmit := map[types.Action]bool{}
	chain.onSubmit = func(a types.Action) { wipedAtSubmit[a] = pw.Wiped() }
	c := newTestCoordinator(chain, &fakeSigner{}, history)

	req := &types.Request{Action: types.ActionUnbond, ChainID: "polkadot", From: alice, Amount: big.NewInt(5_000_000_000_000)}
	out, err := c.Confirm(context.Background(), req, pw)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFinalized, out.Status)

	// 两笔都先签名，chill 终结后才提交 unbond
	assert.Equal(t, []string{
		"activeStake",
		"build:chill", "build:unbond",
		"submit:chill", "queryBlock",
		"submit:unbond", "queryBlock",
	}, chain.Calls())
	assert.Equal(t, map[types.Action]uint64{types.ActionChill: 0, types.ActionUnbond: 1}, chain.nonceOffsets)
	assert.Equal(t, map[types.Action]bool{types.ActionChill: true, types.ActionUnbond: true}, wipedAtSubmit)

	entries := history.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, types.ActionChill, entries[0].Action)
	assert.Equal(t, types.ActionUnbond, entries[1].Action)
}

func TestConfirm_UnstakeAllChillFailureSkipsUnbond(t *testing.T) {
	chain, history := newFakeChain(), &fakeHistory{}
	chain.activeStake = big.NewInt(100)
	chain.scripts[types.ActionChill] = []types.StatusEvent{
		{Kind: types.StatusEventInBlock, BlockHash: "0xb1", Dispatch: &types.DispatchError{Section: "staking", Name: "NotController"}},
	}
	signer := &fakeSigner{}
	c := newTestCoordinator(chain, signer, history)

	req := &types.Request{Action: types.ActionUnbond, ChainID: "polkadot", From: alice, Amount: big.NewInt(100)}
	out, err := c.Confirm(context.Background(), req, types.NewPasswordContext("pw"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, out.Status)
	assert.Contains(t, out.FailureReason, "chill")
	assert.Contains(t, out.FailureReason, "NotController")
	assert.Equal(t, StateFailed, c.State())

	// unbond 已签名但从未提交
	assert.Equal(t, []string{
		"activeStake",
		"build:chill", "build:unbond",
		"submit:chill",
	}, chain.Calls())
	assert.Zero(t, chain.count("submit:unbond"))
	assert.Equal(t, 2, signer.Calls())

	// 只有 chill 被提交，所以只有一条历史
	entries := history.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, types.ActionChill, entries[0].Action)
}

func TestConfirm_UnstakeAllRetryResumesChill(t *testing.T) {
	chain := newFakeChain()
	chain.activeStake = big.NewInt(100)
	signer := &fakeSigner{errs: []error{ErrIncorrectSecret}}
	c := newTestCoordinator(chain, signer, &fakeHistory{})

	req := &types.Request{Action: types.ActionUnbond, ChainID: "polkadot", From: alice, Amount: big.NewInt(100)}
	_, err := c.Confirm(context.Background(), req, types.NewPasswordContext("wrong"))
	require.ErrorIs(t, err, ErrIncorrectSecret)
	assert.Equal(t, StateAwaitingSignature, c.State())

	out, err := c.Confirm(context.Background(), req, types.NewPasswordContext("right"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFinalized, out.Status)
	assert.Equal(t, 1, chain.count("submit:chill"))
	assert.Equal(t, 1, chain.count("submit:unbond"))
	// active stake 只查询一次
	assert.Equal(t, 1, chain.count("activeStake"))
}

func TestCancel_UnstakeAllWhileSigningUnbond(t *testing.T) {
	chain, history := newFakeChain(), &fakeHistory{}
	chain.activeStake = big.NewInt(100)
	// chill 签名立即返回，unbond 签名阻塞到 ctx 取消
	signer := &fakeSigner{block: make(chan struct{}), blockFrom: 1}
	c := newTestCoordinator(chain, signer, history)

	req := &types.Request{Action: types.ActionUnbond, ChainID: "polkadot", From: alice, Amount: big.NewInt(100)}
	done := make(chan error, 1)
	go func() {
		_, err := c.Confirm(context.Background(), req, types.NewPasswordContext("pw"))
		done <- err
	}()

	require.Eventually(t, func() bool { return signer.Calls() == 2 }, time.Second, 5*time.Millisecond)
	c.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("Confirm did not return after Cancel")
	}
	assert.Equal(t, StateCancelled, c.State())
	assert.Equal(t, StateCancelled, c.chill.State())
	assert.Zero(t, chain.count("submit:"))
	assert.Empty(t, history.Entries())
}

func TestCancel_IgnoredWhileChillInFlight(t *testing.T) {
	chain := newFakeChain()
	chain.activeStake = big.NewInt(100)
	chain.scripts[types.ActionChill] = []types.StatusEvent{{Kind: types.StatusEventReady}}
	c := newTestCoordinator(chain, &fakeSigner{}, &fakeHistory{})

	req := &types.Request{Action: types.ActionUnbond, ChainID: "polkadot", From: alice, Amount: big.NewInt(100)}
	done := make(chan *types.Outcome, 1)
	go func() {
		out, _ := c.Confirm(context.Background(), req, types.NewPasswordContext("pw"))
		done <- out
	}()

	require.Eventually(t, func() bool {
		return chain.count("submit:chill") == 1 && c.chill.State() == StateSubmitting
	}, time.Second, 5*time.Millisecond)
	c.Cancel()
	assert.Equal(t, StateAwaitingSignature, c.State())

	chain.mu.Lock()
	sub := chain.subs[0]
	chain.mu.Unlock()
	sub.events <- types.StatusEvent{Kind: types.StatusEventFinalized, BlockHash: "0xblock"}

	select {
	case out := <-done:
		require.NotNil(t, out)
		assert.Equal(t, types.StatusFinalized, out.Status)
	case <-time.After(time.Second):
		t.Fatal("Confirm did not finish")
	}
	assert.Equal(t, 1, chain.count("submit:unbond"))
}

func TestConfirm_PartialUnbondSkipsChill(t *testing.T) {
	chain := newFakeChain()
	chain.activeStake = big.NewInt(100)
	c := newTestCoordinator(chain, &fakeSigner{}, &fakeHistory{})

	req := &types.Request{Action: types.ActionUnbond, ChainID: "polkadot", From: alice, Amount: big.NewInt(40)}
	_, err := c.Confirm(context.Background(), req, types.NewPasswordContext("pw"))
	require.NoError(t, err)
	assert.Zero(t, chain.count("build:chill"))
	assert.Equal(t, 1, chain.count("submit:unbond"))
}

func TestConfirm_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  *types.Request
	}{
		{"nil", nil},
		{"negative amount", &types.Request{Action: types.ActionTransfer, ChainID: "polkadot", From: alice, Target: bob, Amount: big.NewInt(-1)}},
		{"missing amount", &types.Request{Action: types.ActionBond, ChainID: "polkadot", From: alice}},
		{"missing target", &types.Request{Action: types.ActionTransfer, ChainID: "polkadot", From: alice, Amount: big.NewInt(1)}},
		{"bad sender", &types.Request{Action: types.ActionChill, ChainID: "polkadot", From: "bad"}},
		{"empty nominations", &types.Request{Action: types.ActionNominate, ChainID: "polkadot", From: alice}},
		{"too many nominations", &types.Request{Action: types.ActionNominate, ChainID: "polkadot", From: alice, Validators: []string{alice, bob, carol}}},
		{"duplicate nomination", &types.Request{Action: types.ActionNominate, ChainID: "polkadot", From: alice, Validators: []string{bob, bob}}},
		{"missing para", &types.Request{Action: types.ActionContribute, ChainID: "polkadot", From: alice, Amount: big.NewInt(1)}},
		{"unknown action", &types.Request{Action: types.Action(99), ChainID: "polkadot", From: alice}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, signer := newFakeChain(), &fakeSigner{}
			chain.maxNominations = 2
			c := newTestCoordinator(chain, signer, &fakeHistory{})

			out, err := c.Confirm(context.Background(), tt.req, types.NewPasswordContext("pw"))
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Nil(t, out)
			assert.Equal(t, StateIdle, c.State())
			assert.Zero(t, signer.Calls())
			assert.Zero(t, chain.count("submit:"))
		})
	}
}

func TestCancel_TwiceInIdle(t *testing.T) {
	chain, signer, history := newFakeChain(), &fakeSigner{}, &fakeHistory{}
	c := newTestCoordinator(chain, signer, history)

	states := make(chan StateChange, 4)
	sub := c.SubscribeStates(states)
	defer sub.Unsubscribe()

	assert.NotPanics(t, c.Cancel)
	assert.NotPanics(t, c.Cancel)

	assert.Equal(t, StateCancelled, c.State())
	assert.Len(t, drain(states), 1)
	assert.Empty(t, chain.Calls())
	assert.Zero(t, signer.Calls())
	assert.Empty(t, history.Entries())

	_, err := c.Confirm(context.Background(), transferRequest(), types.NewPasswordContext("pw"))
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestCancel_WhileAwaitingSignature(t *testing.T) {
	chain, history := newFakeChain(), &fakeHistory{}
	signer := &fakeSigner{block: make(chan struct{})}
	c := newTestCoordinator(chain, signer, history)

	done := make(chan error, 1)
	pw := types.NewPasswordContext("pw")
	go func() {
		_, err := c.Confirm(context.Background(), transferRequest(), pw)
		done <- err
	}()

	require.Eventually(t, func() bool { return signer.Calls() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateAwaitingSignature, c.State())

	c.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("confirm did not return after cancel")
	}
	assert.Equal(t, StateCancelled, c.State())
	assert.Zero(t, chain.count("submit:"))
	assert.Empty(t, history.Entries())
	assert.True(t, pw.Wiped())
}

func TestCancel_AfterSubmitIsNoop(t *testing.T) {
	c := newTestCoordinator(newFakeChain(), &fakeSigner{}, &fakeHistory{})
	_, err := c.Confirm(context.Background(), transferRequest(), types.NewPasswordContext("pw"))
	require.NoError(t, err)

	c.Cancel()
	assert.Equal(t, StateFinalized, c.State())
}

func TestConfirm_SignerLockedCancels(t *testing.T) {
	chain := newFakeChain()
	signer := &fakeSigner{errs: []error{ErrSignerLocked}}
	c := newTestCoordinator(chain, signer, &fakeHistory{})

	_, err := c.Confirm(context.Background(), transferRequest(), &types.LedgerContext{})
	assert.ErrorIs(t, err, ErrSignerLocked)
	assert.Equal(t, StateCancelled, c.State())
	assert.Zero(t, chain.count("submit:"))
}

func TestConfirm_SignerRejectedCancels(t *testing.T) {
	signer := &fakeSigner{errs: []error{ErrSignerRejected}}
	c := newTestCoordinator(newFakeChain(), signer, &fakeHistory{})

	_, err := c.Confirm(context.Background(), transferRequest(), &types.QRRelayContext{})
	assert.ErrorIs(t, err, ErrSignerRejected)
	assert.Equal(t, StateCancelled, c.State())
}

func TestConfirm_SignerDeviceErrorIsRetryable(t *testing.T) {
	chain := newFakeChain()
	signer := &fakeSigner{errs: []error{errors.New("device disconnected")}}
	c := newTestCoordinator(chain, signer, &fakeHistory{})

	_, err := c.Confirm(context.Background(), transferRequest(), &types.LedgerContext{})
	require.Error(t, err)
	assert.Equal(t, StateAwaitingSignature, c.State())

	out, err := c.Confirm(context.Background(), transferRequest(), &types.LedgerContext{})
	require.NoError(t, err)
	assert.Equal(t, types.StatusFinalized, out.Status)
}

func TestConfirm_TransportFailures(t *testing.T) {
	t.Run("dropped", func(t *testing.T) {
		chain, history := newFakeChain(), &fakeHistory{}
		chain.scripts[types.ActionTransfer] = []types.StatusEvent{
			{Kind: types.StatusEventReady},
			{Kind: types.StatusEventDropped, Reason: "usurped"},
		}
		c := newTestCoordinator(chain, &fakeSigner{}, history)

		out, err := c.Confirm(context.Background(), transferRequest(), types.NewPasswordContext("pw"))
		require.NoError(t, err)
		assert.Equal(t, types.FailureTransport, out.FailureKind)
		assert.Equal(t, "usurped", out.FailureReason)
		assert.NotEmpty(t, out.TxHash)
		assert.Len(t, history.Entries(), 1)
	})

	t.Run("submit error", func(t *testing.T) {
		chain, history := newFakeChain(), &fakeHistory{}
		chain.submitErr[types.ActionTransfer] = errors.New("connection refused")
		c := newTestCoordinator(chain, &fakeSigner{}, history)

		out, err := c.Confirm(context.Background(), transferRequest(), types.NewPasswordContext("pw"))
		require.NoError(t, err)
		assert.Equal(t, types.StatusFailed, out.Status)
		assert.Contains(t, out.FailureReason, "connection refused")
		assert.Len(t, history.Entries(), 1)
	})

	t.Run("build error", func(t *testing.T) {
		chain, history := newFakeChain(), &fakeHistory{}
		chain.buildErr = errors.New("metadata unavailable")
		signer := &fakeSigner{}
		c := newTestCoordinator(chain, signer, history)

		out, err := c.Confirm(context.Background(), transferRequest(), types.NewPasswordContext("pw"))
		require.NoError(t, err)
		assert.Equal(t, types.StatusFailed, out.Status)
		assert.Zero(t, signer.Calls())
		// 未提交，不写历史
		assert.Empty(t, history.Entries())
	})

	t.Run("caller stops listening", func(t *testing.T) {
		chain := newFakeChain()
		chain.scripts[types.ActionTransfer] = []types.StatusEvent{{Kind: types.StatusEventReady}}
		c := newTestCoordinator(chain, &fakeSigner{}, &fakeHistory{})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		out, err := c.Confirm(ctx, transferRequest(), types.NewPasswordContext("pw"))
		require.NoError(t, err)
		assert.Equal(t, types.FailureTransport, out.FailureKind)
		assert.Contains(t, out.FailureReason, "stopped listening")
		assert.EqualValues(t, 1, chain.subs[0].unsubscribed.Load())
	})
}

func TestConfirm_HistoryErrorDoesNotFailOutcome(t *testing.T) {
	history := &fakeHistory{err: errors.New("db down")}
	c := newTestCoordinator(newFakeChain(), &fakeSigner{}, history)

	out, err := c.Confirm(context.Background(), transferRequest(), types.NewPasswordContext("pw"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFinalized, out.Status)
}

func TestConfirm_Busy(t *testing.T) {
	signer := &fakeSigner{block: make(chan struct{})}
	c := newTestCoordinator(newFakeChain(), signer, &fakeHistory{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Confirm(context.Background(), transferRequest(), types.NewPasswordContext("pw"))
	}()
	require.Eventually(t, func() bool { return signer.Calls() == 1 }, time.Second, 5*time.Millisecond)

	_, err := c.Confirm(context.Background(), transferRequest(), types.NewPasswordContext("pw"))
	assert.ErrorIs(t, err, ErrBusy)

	close(signer.block)
	<-done
	assert.Equal(t, StateFinalized, c.State())
}

func TestEstimateFee_HasNoSideEffects(t *testing.T) {
	chain, signer := newFakeChain(), &fakeSigner{}
	c := newTestCoordinator(chain, signer, &fakeHistory{})

	for i := 0; i < 3; i++ {
		fee, err := c.EstimateFee(context.Background(), transferRequest())
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(15_600_000), fee.Partial)
	}
	assert.Equal(t, StateIdle, c.State())
	assert.Zero(t, signer.Calls())
	assert.Zero(t, chain.count("submit:"))

	_, err := c.EstimateFee(context.Background(), &types.Request{Action: types.ActionNominate, ChainID: "polkadot", From: alice})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestTransitionTable(t *testing.T) {
	assert.False(t, canTransition(StateSubmitting, StateAwaitingSignature))
	assert.False(t, canTransition(StateIncluded, StateAwaitingSignature))
	assert.False(t, canTransition(StateSubmitting, StateCancelled))
	assert.False(t, canTransition(StateFinalized, StateFailed))
	assert.True(t, canTransition(StateIdle, StateExpired))
	assert.True(t, canTransition(StateIncluded, StateFinalized))
}
