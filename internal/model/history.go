package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxHistory 交易历史表 (只追加，写入后不再修改)
type TxHistory struct {
	ID             uint64              `gorm:"primaryKey;autoIncrement" json:"id"`
	Owner          string              `gorm:"type:varchar(64);not null;index:idx_owner_chain" json:"owner"`
	ChainID        string              `gorm:"type:varchar(32);not null;index:idx_owner_chain" json:"chain_id"`
	Action         string              `gorm:"type:varchar(32);not null" json:"action"`
	Status         string              `gorm:"type:varchar(16);not null" json:"status"`        // finalized, failed
	FailureKind    string              `gorm:"type:varchar(16)" json:"failure_kind,omitempty"` // dispatch, transport, expired
	TxHash         string              `gorm:"type:varchar(66);index" json:"tx_hash"`
	BlockHash      string              `gorm:"type:varchar(66)" json:"block_hash,omitempty"`
	ExtrinsicIndex int                 `gorm:"not null" json:"extrinsic_index"`           // -1: 未知
	Amount         decimal.Decimal     `gorm:"type:decimal(40,0);not null" json:"amount"` // 最小单位
	Target         string              `gorm:"type:text" json:"target,omitempty"`
	Fee            decimal.NullDecimal `gorm:"type:decimal(40,0)" json:"fee"` // 未知时为 NULL
	FailureReason  string              `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

func (TxHistory) TableName() string {
	return "tx_history"
}
