package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dot-wallet/internal/handler"
	"dot-wallet/internal/server"
	"dot-wallet/internal/service"
	"dot-wallet/internal/service/lifecycle"
	"dot-wallet/internal/signer"
	"dot-wallet/pkg/errno"
	"dot-wallet/pkg/wallet/types"
)

type fakeTxAPI struct {
	lastInput *service.TxInput
	lastSC    types.SigningContext
	submitErr error
	relayed   map[string][]byte
}

func (f *fakeTxAPI) EstimateFee(_ context.Context, in *service.TxInput) (*service.FeeQuote, error) {
	f.lastInput = in
	return &service.FeeQuote{ChainID: in.ChainID, Action: in.Action, Partial: "156000000", Display: "0.01560 DOT"}, nil
}

func (f *fakeTxAPI) Submit(_ context.Context, in *service.TxInput, sc types.SigningContext) (*service.FlowView, error) {
	f.lastInput, f.lastSC = in, sc
	return &service.FlowView{ID: "flow-1", State: "awaitingSignature"}, f.submitErr
}

func (f *fakeTxAPI) Sign(_ context.Context, id string, sc types.SigningContext) (*service.FlowView, error) {
	f.lastSC = sc
	return &service.FlowView{ID: id, State: "submitting"}, nil
}

func (f *fakeTxAPI) Cancel(_ context.Context, id string) (*service.FlowView, error) {
	return &service.FlowView{ID: id, State: "cancelled"}, nil
}

func (f *fakeTxAPI) Get(_ context.Context, id string) (*service.FlowView, error) {
	if id != "flow-1" {
		return nil, errno.ErrFlowNotFound
	}
	return &service.FlowView{ID: id, State: "finalized"}, nil
}

func (f *fakeTxAPI) History(_ context.Context, owner, chainID string, limit int) ([]*service.HistoryView, error) {
	return []*service.HistoryView{{ChainID: chainID, Action: "transfer", Status: "finalized", TxHash: "0x01"}}, nil
}

func (f *fakeTxAPI) RelayResponse(_ context.Context, id string, payload []byte) error {
	if f.relayed == nil {
		f.relayed = map[string][]byte{}
	}
	f.relayed[id] = payload
	return nil
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) envelope {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func newRouter() (*gin.Engine, *fakeTxAPI) {
	gin.SetMode(gin.TestMode)
	api := &fakeTxAPI{}
	return server.NewHTTPRouter(handler.NewTxHandler(api)), api
}

func TestSubmit_PasswordContext(t *testing.T) {
	r, api := newRouter()

	env := do(t, r, http.MethodPost, "/api/v1/tx", gin.H{
		"chain_id": "polkadot",
		"action":   "transfer",
		"from":     "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5",
		"target":   "14E5nqKAp3oAJcmzgZhUD2RcptBeUBScxKHgJKU4HPNcKVf3",
		"amount":   "1.5",
		"signer":   gin.H{"kind": "password", "password": "hunter2"},
	})
	assert.Equal(t, 0, env.Code)
	assert.Equal(t, "1.5", api.lastInput.Amount)
	pw, ok := api.lastSC.(*types.PasswordContext)
	require.True(t, ok)
	assert.Equal(t, "hunter2", string(pw.Secret()))
	assert.NotContains(t, fmt.Sprintf("%v %#v", pw, pw), "hunter2")
}

func TestSubmit_IncorrectSecretReturnsFlow(t *testing.T) {
	r, api := newRouter()
	api.submitErr = fmt.Errorf("sign: %w", lifecycle.ErrIncorrectSecret)

	env := do(t, r, http.MethodPost, "/api/v1/tx", gin.H{
		"chain_id": "polkadot",
		"action":   "chill",
		"from":     "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5",
		"signer":   gin.H{"kind": "password", "password": "nope"},
	})
	assert.Equal(t, errno.ErrIncorrectSecret.Code, env.Code)

	var flow service.FlowView
	require.NoError(t, json.Unmarshal(env.Data, &flow))
	assert.Equal(t, "flow-1", flow.ID)
}

func TestSubmit_BindErrors(t *testing.T) {
	r, _ := newRouter()

	env := do(t, r, http.MethodPost, "/api/v1/tx", gin.H{
		"chain_id": "polkadot",
		"action":   "teleport",
		"from":     "x",
		"signer":   gin.H{"kind": "password"},
	})
	assert.Equal(t, errno.ErrBind.Code, env.Code)
	assert.Contains(t, env.Msg, "Action")

	env = do(t, r, http.MethodPost, "/api/v1/tx", gin.H{
		"chain_id": "polkadot",
		"action":   "chill",
		"from":     "x",
		"signer":   gin.H{"kind": "telepathy"},
	})
	assert.Equal(t, errno.ErrBind.Code, env.Code)
}

func TestSignRetryAndCancel(t *testing.T) {
	r, api := newRouter()

	env := do(t, r, http.MethodPost, "/api/v1/tx/flow-1/sign", gin.H{
		"signer": gin.H{"kind": "ledger", "account_index": 2},
	})
	assert.Equal(t, 0, env.Code)
	lc, ok := api.lastSC.(*types.LedgerContext)
	require.True(t, ok)
	assert.Equal(t, uint32(2), lc.AccountIndex)

	env = do(t, r, http.MethodPost, "/api/v1/tx/flow-1/cancel", nil)
	assert.Equal(t, 0, env.Code)
	assert.Contains(t, string(env.Data), "cancelled")

	env = do(t, r, http.MethodGet, "/api/v1/tx/unknown", nil)
	assert.Equal(t, errno.ErrFlowNotFound.Code, env.Code)
}

func TestSignRelay(t *testing.T) {
	r, api := newRouter()

	env := do(t, r, http.MethodPost, "/api/v1/sign-relay/req-9", gin.H{
		"rejected": true,
		"reason":   "user declined",
	})
	assert.Equal(t, 0, env.Code)

	var resp signer.SignResponse
	require.NoError(t, json.Unmarshal(api.relayed["req-9"], &resp))
	assert.Equal(t, "req-9", resp.ID)
	assert.True(t, resp.Rejected)
	assert.ErrorIs(t, resp.Err(), lifecycle.ErrSignerRejected)
}

func TestHistoryAndHealth(t *testing.T) {
	r, _ := newRouter()

	env := do(t, r, http.MethodGet, "/api/v1/history/15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5?chain_id=polkadot&limit=10", nil)
	assert.Equal(t, 0, env.Code)
	assert.Contains(t, string(env.Data), `"tx_hash":"0x01"`)

	env = do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, 0, env.Code)
}
