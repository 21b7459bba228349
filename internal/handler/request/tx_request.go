package request

import (
	"time"

	"dot-wallet/pkg/wallet/types"
)

// TxIntentRequest 交易意图，金额为人类可读格式 (例如 "1.5")
type TxIntentRequest struct {
	ChainID    string   `json:"chain_id" binding:"required"`
	Action     string   `json:"action" binding:"required,tx_action"`
	From       string   `json:"from" binding:"required"`
	Amount     string   `json:"amount"`
	Target     string   `json:"target"`
	Validators []string `json:"validators" binding:"omitempty,max=64,dive,required"`
	ParaID     uint32   `json:"para_id"`
	// ExpiresIn 秒，0 使用默认有效期
	ExpiresIn int64 `json:"expires_in" binding:"min=0"`
}

// SignerRequest 签名方式及其参数
type SignerRequest struct {
	Kind     string `json:"kind" binding:"required,signer_kind"`
	Password string `json:"password"`

	AccountIndex     uint32 `json:"account_index"`
	AddressOffset    uint32 `json:"address_offset"`
	KnownSpecVersion uint32 `json:"known_spec_version"`

	Channel string `json:"channel"`
	Origin  string `json:"origin"`
}

// Context 转换为 SigningContext，密码只在这里离开请求体
func (r *SignerRequest) Context() types.SigningContext {
	switch types.SignerKind(r.Kind) {
	case types.SignerPassword:
		sc := types.NewPasswordContext(r.Password)
		r.Password = ""
		return sc
	case types.SignerLedger:
		return &types.LedgerContext{
			AccountIndex:     r.AccountIndex,
			AddressOffset:    r.AddressOffset,
			KnownSpecVersion: r.KnownSpecVersion,
		}
	case types.SignerQR:
		return &types.QRRelayContext{Channel: r.Channel}
	case types.SignerInjected:
		return &types.InjectedContext{Origin: r.Origin}
	default:
		return nil
	}
}

// SubmitTxRequest 创建并确认交易
type SubmitTxRequest struct {
	TxIntentRequest
	Signer SignerRequest `json:"signer" binding:"required"`
}

// SignTxRequest 用同一笔交易重试签名
type SignTxRequest struct {
	Signer SignerRequest `json:"signer" binding:"required"`
}

// SignRelayRequest 外部签名方回传签名或拒绝
type SignRelayRequest struct {
	Scheme    string `json:"scheme" binding:"omitempty,oneof=sr25519 ed25519 ecdsa"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
	Rejected  bool   `json:"rejected"`
	Locked    bool   `json:"locked"`
	Reason    string `json:"reason"`
}

// HistoryQuery GET /history/:address
type HistoryQuery struct {
	ChainID string `form:"chain_id"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=200"`
}

func ExpiresAt(now time.Time, seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(seconds) * time.Second)
}
