package history

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"dot-wallet/internal/model"
	"dot-wallet/pkg/wallet/types"
)

// TopicTxHistory 历史记录事件的 MQ 主题
const TopicTxHistory = "wallet_events_tx_history"

// Event 是写入 outbox 的历史事件
type Event struct {
	Owner     string    `json:"owner"`
	ChainID   string    `json:"chain_id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	TxHash    string    `json:"tx_hash"`
	BlockHash string    `json:"block_hash,omitempty"`
	Amount    string    `json:"amount"`
	Fee       string    `json:"fee,omitempty"`
	Reason    string    `json:"failure_reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store 基于 gorm 的只追加历史存储，每条记录同时写一条 outbox 消息
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Append 在同一事务里写入历史记录和 outbox 事件
func (s *Store) Append(ctx context.Context, owner string, entry *types.HistoryEntry) error {
	row := toModel(owner, entry)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return fmt.Errorf("insert tx history: %w", err)
		}
		return model.CreateOutboxMessage(tx, TopicTxHistory, owner, toEvent(row))
	})
}

// List 按账户读取历史，最新的在前
func (s *Store) List(ctx context.Context, owner, chainID string, limit int) ([]*types.HistoryEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Where("owner = ?", owner)
	if chainID != "" {
		q = q.Where("chain_id = ?", chainID)
	}

	var rows []model.TxHistory
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*types.HistoryEntry, 0, len(rows))
	for i := range rows {
		e, err := fromModel(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func toModel(owner string, e *types.HistoryEntry) *model.TxHistory {
	row := &model.TxHistory{
		Owner:          owner,
		ChainID:        e.ChainID,
		Action:         e.Action.String(),
		Status:         string(e.Status),
		FailureKind:    string(e.FailureKind),
		TxHash:         e.TxHash,
		BlockHash:      e.BlockHash,
		ExtrinsicIndex: e.ExtrinsicIndex,
		Amount:         decimal.Zero,
		Target:         e.Target,
		FailureReason:  e.FailureReason,
		CreatedAt:      e.CreatedAt,
	}
	if e.Amount != nil {
		row.Amount = decimal.NewFromBigInt(e.Amount, 0)
	}
	if e.Fee != nil {
		row.Fee = decimal.NewNullDecimal(decimal.NewFromBigInt(e.Fee, 0))
	}
	return row
}

func fromModel(row *model.TxHistory) (*types.HistoryEntry, error) {
	action, err := types.ParseAction(row.Action)
	if err != nil {
		return nil, fmt.Errorf("history row %d: %w", row.ID, err)
	}
	e := &types.HistoryEntry{
		Owner:          row.Owner,
		ChainID:        row.ChainID,
		Action:         action,
		Status:         types.Status(row.Status),
		FailureKind:    types.FailureKind(row.FailureKind),
		TxHash:         row.TxHash,
		BlockHash:      row.BlockHash,
		ExtrinsicIndex: row.ExtrinsicIndex,
		Amount:         row.Amount.BigInt(),
		Target:         row.Target,
		FailureReason:  row.FailureReason,
		CreatedAt:      row.CreatedAt,
	}
	if row.Fee.Valid {
		e.Fee = row.Fee.Decimal.BigInt()
	}
	return e, nil
}

func toEvent(row *model.TxHistory) *Event {
	ev := &Event{
		Owner:     row.Owner,
		ChainID:   row.ChainID,
		Action:    row.Action,
		Status:    row.Status,
		TxHash:    row.TxHash,
		BlockHash: row.BlockHash,
		Amount:    row.Amount.String(),
		Reason:    row.FailureReason,
		CreatedAt: row.CreatedAt,
	}
	if row.Fee.Valid {
		ev.Fee = row.Fee.Decimal.String()
	}
	return ev
}
