package lock

import (
	"context"
	"sync"
	"time"
)

type holder struct {
	owner   string
	expires time.Time
}

// LocalLock 是单进程内的 DistributedLock，给 CLI 和测试使用
type LocalLock struct {
	mu    sync.Mutex
	held  map[string]holder
	clock func() time.Time
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]holder), clock: time.Now}
}

func (l *LocalLock) Acquire(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return false, nil
	}
	l.held[key] = holder{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (l *LocalLock) Release(_ context.Context, key, owner string) error {
	l.mu.Lock()
	if h, ok := l.held[key]; ok && h.owner == owner {
		delete(l.held, key)
	}
	l.mu.Unlock()
	return nil
}
