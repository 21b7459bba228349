package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feeEntry struct {
	Partial string `json:"partial"`
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, time.Minute)

	entry := &feeEntry{Partial: "15600000"}
	require.NoError(t, c.Set(ctx, Key("fee", "polkadot"), entry, time.Minute))

	// 修改原对象不影响缓存
	entry.Partial = "0"

	var got feeEntry
	require.NoError(t, c.Get(ctx, Key("fee", "polkadot"), &got))
	assert.Equal(t, "15600000", got.Partial)

	require.NoError(t, c.Delete(ctx, Key("fee", "polkadot")))
	assert.ErrorIs(t, c.Get(ctx, Key("fee", "polkadot"), &got), ErrMiss)
}

func TestMultiLevelCache_BackfillsL1(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryCache(time.Minute, time.Minute)
	l2 := NewMemoryCache(time.Minute, time.Minute)
	m := NewMultiLevelCache(l1, l2)

	require.NoError(t, l2.Set(ctx, "k", &feeEntry{Partial: "1"}, time.Minute))

	var got feeEntry
	require.NoError(t, m.Get(ctx, "k", &got))
	assert.Equal(t, "1", got.Partial)

	var fromL1 feeEntry
	require.NoError(t, l1.Get(ctx, "k", &fromL1))
	assert.Equal(t, "1", fromL1.Partial)

	assert.ErrorIs(t, m.Get(ctx, "missing", &got), ErrMiss)
	assert.Equal(t, "dotwallet:a:b", Key("a", "b"))
}
