package history

import (
	"context"
	"sync"

	"dot-wallet/pkg/wallet/types"
)

// MemoryStore 进程内历史，命令行和测试使用
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]*types.HistoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]*types.HistoryEntry)}
}

func (s *MemoryStore) Append(_ context.Context, owner string, entry *types.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[owner] = append(s.entries[owner], entry)
	return nil
}

// List 与 Store.List 相同的语义: 最新的在前，默认 50 条
func (s *MemoryStore) List(_ context.Context, owner, chainID string, limit int) ([]*types.HistoryEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.entries[owner]
	out := make([]*types.HistoryEntry, 0, len(all))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if chainID == "" || all[i].ChainID == chainID {
			out = append(out, all[i])
		}
	}
	return out, nil
}
