package history

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dot-wallet/pkg/wallet/types"
)

func TestModelRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	entry := &types.HistoryEntry{
		Owner:          "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5",
		ChainID:        "polkadot",
		Action:         types.ActionBondExtra,
		Status:         types.StatusFinalized,
		TxHash:         "0xabc",
		BlockHash:      "0xdef",
		ExtrinsicIndex: 3,
		// 超过 int64 范围
		Amount:    new(big.Int).Mul(big.NewInt(1_000_000_000_000), big.NewInt(100_000_000_000)),
		Fee:       big.NewInt(15_600_000),
		CreatedAt: at,
	}

	row := toModel(entry.Owner, entry)
	assert.Equal(t, "bondExtra", row.Action)
	assert.Equal(t, "100000000000000000000000", row.Amount.String())

	back, err := fromModel(row)
	require.NoError(t, err)
	assert.Equal(t, entry, back)
}

func TestModel_FailedWithoutFee(t *testing.T) {
	entry := &types.HistoryEntry{
		Owner:         "owner",
		ChainID:       "kusama",
		Action:        types.ActionTransfer,
		Status:        types.StatusFailed,
		FailureKind:   types.FailureDispatch,
		FailureReason: "balances.InsufficientBalance",
		Amount:        big.NewInt(5),
	}

	row := toModel("owner", entry)
	back, err := fromModel(row)
	require.NoError(t, err)
	assert.Nil(t, back.Fee)
	assert.Equal(t, types.FailureDispatch, back.FailureKind)

	b, err := json.Marshal(toEvent(row))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"owner": "owner",
		"chain_id": "kusama",
		"action": "transfer",
		"status": "failed",
		"tx_hash": "",
		"amount": "5",
		"failure_reason": "balances.InsufficientBalance",
		"created_at": "0001-01-01T00:00:00Z"
	}`, string(b))
}

func TestModel_ZeroFeeAndFirstExtrinsic(t *testing.T) {
	entry := &types.HistoryEntry{
		Owner:          "owner",
		ChainID:        "westend",
		Action:         types.ActionTransfer,
		Status:         types.StatusFinalized,
		ExtrinsicIndex: 0,
		Amount:         big.NewInt(1),
		Fee:            big.NewInt(0),
	}

	row := toModel("owner", entry)
	assert.True(t, row.Fee.Valid)
	assert.Equal(t, 0, row.ExtrinsicIndex)

	back, err := fromModel(row)
	require.NoError(t, err)
	require.NotNil(t, back.Fee)
	assert.Zero(t, back.Fee.Sign())
	assert.Equal(t, "0", toEvent(row).Fee)
}

func TestFromModel_UnknownAction(t *testing.T) {
	row := toModel("o", &types.HistoryEntry{Action: types.ActionChill, Amount: big.NewInt(0)})
	row.Action = "teleport"
	_, err := fromModel(row)
	assert.Error(t, err)
}

func TestMemoryStore_List(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	owner := "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5"

	require.NoError(t, s.Append(ctx, owner, &types.HistoryEntry{ChainID: "polkadot", TxHash: "0x01"}))
	require.NoError(t, s.Append(ctx, owner, &types.HistoryEntry{ChainID: "kusama", TxHash: "0x02"}))
	require.NoError(t, s.Append(ctx, owner, &types.HistoryEntry{ChainID: "polkadot", TxHash: "0x03"}))

	all, err := s.List(ctx, owner, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "0x03", all[0].TxHash)

	dot, err := s.List(ctx, owner, "polkadot", 1)
	require.NoError(t, err)
	require.Len(t, dot, 1)
	assert.Equal(t, "0x03", dot[0].TxHash)

	none, err := s.List(ctx, "someone-else", "", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
