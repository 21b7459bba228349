package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistributedLock 定义分布式锁接口
type DistributedLock interface {
	// Acquire 尝试获取锁
	// key: 锁的唯一标识
	// owner: 本次持有者的唯一标识 (如 flow ID)，释放时必须一致
	// ttl: 锁的过期时间
	// 返回: (是否成功, error)
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// Release 释放锁，只有 owner 与持有者一致时才删除
	Release(ctx context.Context, key, owner string) error
}

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock 基于 Redis SETNX 的实现，value 为 owner
type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	// SET lock:key owner NX EX ttl
	return l.client.SetNX(ctx, "lock:"+key, owner, ttl).Result()
}

func (l *RedisLock) Release(ctx context.Context, key, owner string) error {
	return releaseScript.Run(ctx, l.client, []string{"lock:" + key}, owner).Err()
}
