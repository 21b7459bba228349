package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"dot-wallet/internal/chain/substrate"
	"dot-wallet/internal/handler/request"
	"dot-wallet/internal/handler/response"
	"dot-wallet/internal/service"
	"dot-wallet/internal/service/lifecycle"
	"dot-wallet/internal/signer"
	"dot-wallet/pkg/errno"
	"dot-wallet/pkg/validator"
	"dot-wallet/pkg/wallet/types"
)

// TxAPI 是 handler 依赖的交易服务 (service.TxService 实现)
type TxAPI interface {
	EstimateFee(ctx context.Context, in *service.TxInput) (*service.FeeQuote, error)
	Submit(ctx context.Context, in *service.TxInput, sc types.SigningContext) (*service.FlowView, error)
	Sign(ctx context.Context, id string, sc types.SigningContext) (*service.FlowView, error)
	Cancel(ctx context.Context, id string) (*service.FlowView, error)
	Get(ctx context.Context, id string) (*service.FlowView, error)
	History(ctx context.Context, owner, chainID string, limit int) ([]*service.HistoryView, error)
	RelayResponse(ctx context.Context, id string, payload []byte) error
}

type TxHandler struct {
	svc TxAPI
	now func() time.Time
}

func NewTxHandler(svc TxAPI) *TxHandler {
	return &TxHandler{svc: svc, now: time.Now}
}

// toErrno 把生命周期错误映射为业务错误码
func toErrno(err error) error {
	switch {
	case errors.Is(err, lifecycle.ErrInvalidRequest):
		return errno.ErrInvalidRequest.WithMessage(err.Error())
	case errors.Is(err, lifecycle.ErrIncorrectSecret):
		return errno.ErrIncorrectSecret
	case errors.Is(err, lifecycle.ErrSignerLocked):
		return errno.ErrSignerLocked
	case errors.Is(err, lifecycle.ErrSignerRejected):
		return errno.ErrSignerRejected
	case errors.Is(err, lifecycle.ErrCancelled):
		return errno.ErrTxCancelled
	case errors.Is(err, lifecycle.ErrInvalidState):
		return errno.ErrTxState
	case errors.Is(err, lifecycle.ErrBusy):
		return errno.ErrTxBusy
	case errors.Is(err, substrate.ErrNotConnected):
		return errno.ErrChainUnavailable
	case errors.Is(err, signer.ErrRelayTimeout):
		return errno.ErrSignerUnavailable.WithMessage(err.Error())
	default:
		return err
	}
}

// flowError 出错时如果 flow 已创建，一并返回 (用于重试签名)
func flowError(c *gin.Context, err error, flow *service.FlowView) {
	if flow == nil {
		response.Error(c, toErrno(err))
		return
	}
	response.ErrorWithData(c, toErrno(err), flow)
}

func bindError(c *gin.Context, err error) {
	response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
}

func (h *TxHandler) input(r *request.TxIntentRequest) *service.TxInput {
	return &service.TxInput{
		ChainID:    r.ChainID,
		Action:     r.Action,
		From:       r.From,
		Amount:     r.Amount,
		Target:     r.Target,
		Validators: r.Validators,
		ParaID:     r.ParaID,
		ExpiresAt:  request.ExpiresAt(h.now(), r.ExpiresIn),
	}
}

// EstimateFee 预估手续费
// @Summary 预估手续费
// @Tags Tx
// @Accept json
// @Produce json
// @Param request body request.TxIntentRequest true "交易意图"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/fee [post]
func (h *TxHandler) EstimateFee(c *gin.Context) {
	var req request.TxIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	quote, err := h.svc.EstimateFee(c.Request.Context(), h.input(&req))
	if err != nil {
		response.Error(c, toErrno(err))
		return
	}
	response.Success(c, quote)
}

// Submit 创建交易并确认签名
// @Summary 确认交易
// @Tags Tx
// @Accept json
// @Produce json
// @Param request body request.SubmitTxRequest true "交易与签名方式"
// @Success 200 {object} response.Response
// @Router /api/v1/tx [post]
func (h *TxHandler) Submit(c *gin.Context) {
	var req request.SubmitTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	flow, err := h.svc.Submit(c.Request.Context(), h.input(&req.TxIntentRequest), req.Signer.Context())
	if err != nil {
		flowError(c, err, flow)
		return
	}
	response.Success(c, flow)
}

// Sign 密码错误后重试签名
// @Router /api/v1/tx/{id}/sign [post]
func (h *TxHandler) Sign(c *gin.Context) {
	var req request.SignTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	flow, err := h.svc.Sign(c.Request.Context(), c.Param("id"), req.Signer.Context())
	if err != nil {
		flowError(c, err, flow)
		return
	}
	response.Success(c, flow)
}

// @Router /api/v1/tx/{id}/cancel [post]
func (h *TxHandler) Cancel(c *gin.Context) {
	flow, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, toErrno(err))
		return
	}
	response.Success(c, flow)
}

// @Router /api/v1/tx/{id} [get]
func (h *TxHandler) Get(c *gin.Context) {
	flow, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, toErrno(err))
		return
	}
	response.Success(c, flow)
}

// History 账户交易历史
// @Router /api/v1/history/{address} [get]
func (h *TxHandler) History(c *gin.Context) {
	var q request.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	items, err := h.svc.History(c.Request.Context(), c.Param("address"), q.ChainID, q.Limit)
	if err != nil {
		response.Error(c, toErrno(err))
		return
	}
	response.Success(c, gin.H{"items": items})
}

// SignRelay 外部签名方 (QR / 注入式钱包 / Ledger 伴侣程序) 回传结果
// @Router /api/v1/sign-relay/{id} [post]
func (h *TxHandler) SignRelay(c *gin.Context) {
	var req request.SignRelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	id := c.Param("id")
	payload, err := json.Marshal(&signer.SignResponse{
		ID:        id,
		Scheme:    types.SignatureScheme(req.Scheme),
		Signature: req.Signature,
		PublicKey: req.PublicKey,
		Rejected:  req.Rejected,
		Locked:    req.Locked,
		Reason:    req.Reason,
	})
	if err != nil {
		response.Error(c, errno.InternalServerError)
		return
	}
	if err := h.svc.RelayResponse(c.Request.Context(), id, payload); err != nil {
		response.Error(c, toErrno(err))
		return
	}
	response.Success(c, gin.H{"id": id})
}
