package routes

import (
	"github.com/gin-gonic/gin"

	"dot-wallet/internal/handler"
)

// RegisterTxRoutes 注册交易生命周期路由
func RegisterTxRoutes(rg *gin.RouterGroup, h *handler.TxHandler) {
	txGroup := rg.Group("/tx")
	{
		txGroup.POST("/fee", h.EstimateFee)
		txGroup.POST("", h.Submit)
		txGroup.GET("/:id", h.Get)
		txGroup.POST("/:id/sign", h.Sign)
		txGroup.POST("/:id/cancel", h.Cancel)
	}

	// GET /api/v1/history/:address?chain_id=polkadot&limit=50
	rg.GET("/history/:address", h.History)
}

// RegisterSignRelayRoutes 外部签名方回传 (QR / 注入式钱包 / Ledger 伴侣程序)
func RegisterSignRelayRoutes(rg *gin.RouterGroup, h *handler.TxHandler) {
	rg.POST("/sign-relay/:id", h.SignRelay)
}
