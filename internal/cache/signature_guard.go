package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SignatureGuard 記錄已使用過的簽章請求；同一個 key 在 ttl 內只能被領取一次
type SignatureGuard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type RedisSignatureGuard struct {
	client *redis.Client
}

// NewRedisSignatureGuard 多個服務實例共用同一份紀錄
func NewRedisSignatureGuard(client *redis.Client) SignatureGuard {
	return &RedisSignatureGuard{client: client}
}

func (g *RedisSignatureGuard) key(key string) string {
	return "auth:used:" + key
}

func (g *RedisSignatureGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.client.SetNX(ctx, g.key(key), 1, ttl).Result()
}

// MemorySignatureGuard 單一實例、沒有 Redis 時使用
type MemorySignatureGuard struct {
	mu    sync.Mutex
	used  map[string]time.Time
	clock func() time.Time
}

func NewMemorySignatureGuard(clock func() time.Time) SignatureGuard {
	if clock == nil {
		clock = time.Now
	}
	return &MemorySignatureGuard{used: make(map[string]time.Time), clock: clock}
}

func (g *MemorySignatureGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()
	for k, expireAt := range g.used {
		if !now.Before(expireAt) {
			delete(g.used, k)
		}
	}
	if _, ok := g.used[key]; ok {
		return false, nil
	}
	g.used[key] = now.Add(ttl)
	return true, nil
}
