package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"dot-wallet/pkg/wallet/types"
)

const (
	alice = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	bob   = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	carol = "5FLSigC9HGRKVhB9FiEo4Y3koPsNmBmLJbpXg2mp1hXcS59Y"
)

type fakeSub struct {
	hash         string
	events       chan types.StatusEvent
	errs         chan error
	unsubscribed atomic.Int32
}

func (s *fakeSub) TxHash() string                   { return s.hash }
func (s *fakeSub) Events() <-chan types.StatusEvent { return s.events }
func (s *fakeSub) Err() <-chan error                { return s.errs }
func (s *fakeSub) Unsubscribe()                     { s.unsubscribed.Add(1) }

type fakeChain struct {
	mu     sync.Mutex
	calls  []string
	checks int
	subs   []*fakeSub

	maxNominations uint32
	activeStake    *big.Int
	fee            *big.Int

	// 每个 action 的状态事件脚本，nil 表示默认: inBlock + finalized
	scripts   map[types.Action][]types.StatusEvent
	submitErr map[types.Action]error
	buildErr  error
	block     *types.Block
	blockErr  error

	nonceOffsets map[types.Action]uint64
	onSubmit     func(types.Action)
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		maxNominations: 16,
		activeStake:    big.NewInt(0),
		fee:            big.NewInt(15_600_000),
		scripts:        map[types.Action][]types.StatusEvent{},
		submitErr:      map[types.Action]error{},
		nonceOffsets:   map[types.Action]uint64{},
		block: &types.Block{
			Hash: "0xblock",
			Extrinsics: []types.BlockExtrinsic{
				{Index: 0, Hash: "0xinherent"},
				{Index: 1, Hash: "0xfrombob", Signer: bob, Fee: big.NewInt(1)},
				{Index: 2, Hash: "0xfromalice", Signer: alice, Fee: big.NewInt(15_000_000)},
			},
		},
	}
}

func (f *fakeChain) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeChain) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeChain) count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeChain) CheckAddress(addr string) error {
	f.mu.Lock()
	f.checks++
	f.mu.Unlock()
	if addr == "" || addr == "bad" {
		return errors.New("invalid ss58 address")
	}
	return nil
}

func (f *fakeChain) Build(_ context.Context, req *types.Request) (*types.UnsignedTx, error) {
	f.record("build:" + req.Action.String())
	f.mu.Lock()
	f.nonceOffsets[req.Action] = req.NonceOffset
	f.mu.Unlock()
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return &types.UnsignedTx{Request: req, Payload: []byte("payload:" + req.Action.String()), SpecVersion: 1000}, nil
}

func (f *fakeChain) SubmitAndWatch(_ context.Context, tx *types.SignedTx) (Subscription, error) {
	action := tx.Unsigned.Request.Action
	f.record("submit:" + action.String())
	if f.onSubmit != nil {
		f.onSubmit(action)
	}
	if err := f.submitErr[action]; err != nil {
		return nil, err
	}

	script, ok := f.scripts[action]
	if !ok {
		script = []types.StatusEvent{
			{Kind: types.StatusEventReady},
			{Kind: types.StatusEventInBlock, BlockHash: "0xblock"},
			{Kind: types.StatusEventFinalized, BlockHash: "0xblock"},
		}
	}

	f.mu.Lock()
	sub := &fakeSub{
		hash:   fmt.Sprintf("0xsubmitted-%s-%d", action, len(f.subs)),
		events: make(chan types.StatusEvent, len(script)+1),
		errs:   make(chan error, 1),
	}
	f.subs = append(f.subs, sub)
	f.mu.Unlock()

	for _, ev := range script {
		sub.events <- ev
	}
	return sub, nil
}

func (f *fakeChain) QueryBlock(_ context.Context, hash string) (*types.Block, error) {
	f.record("queryBlock")
	if f.blockErr != nil {
		return nil, f.blockErr
	}
	return f.block, nil
}

func (f *fakeChain) EstimateFee(_ context.Context, _ *types.UnsignedTx, _ string) (*big.Int, error) {
	f.record("estimateFee")
	return new(big.Int).Set(f.fee), nil
}

func (f *fakeChain) MaxNominations(context.Context) (uint32, error) {
	f.record("maxNominations")
	return f.maxNominations, nil
}

func (f *fakeChain) ActiveStake(context.Context, string) (*big.Int, error) {
	f.record("activeStake")
	return new(big.Int).Set(f.activeStake), nil
}

type fakeSigner struct {
	mu      sync.Mutex
	calls   int
	secrets []string
	errs    []error // 按调用顺序返回
	block   chan struct{}

	// 从第 blockFrom 次调用 (0 起) 开始阻塞
	blockFrom int
}

func (s *fakeSigner) Sign(ctx context.Context, tx *types.UnsignedTx, sc types.SigningContext) (*types.Signature, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	if pw, ok := sc.(*types.PasswordContext); ok {
		s.secrets = append(s.secrets, string(pw.Secret()))
	}
	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	block := s.block
	if idx < s.blockFrom {
		block = nil
	}
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &types.Signature{Scheme: types.SchemeSr25519, Bytes: make([]byte, 64), PublicKey: make([]byte, 32)}, nil
}

func (s *fakeSigner) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []*types.HistoryEntry
	err     error
}

func (h *fakeHistory) Append(_ context.Context, owner string, e *types.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if owner != e.Owner {
		return fmt.Errorf("owner mismatch %s != %s", owner, e.Owner)
	}
	h.entries = append(h.entries, e)
	return h.err
}

func (h *fakeHistory) Entries() []*types.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*types.HistoryEntry(nil), h.entries...)
}
