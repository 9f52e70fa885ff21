package embedding

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/easyops/twinmcp/pkg/core/errors"
)

// Cache 嵌入结果缓存
//
// SetNX 只在键不存在时写入；已存在的条目保持不变。
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	SetNX(ctx context.Context, key string, result *Result, ttl time.Duration) error
}

// MemoryCache 进程内缓存，容量满时按 LRU 淘汰
type MemoryCache struct {
	lru *expirable.LRU[string, memoryEntry]
	now func() time.Time
	mu  sync.Mutex
}

type memoryEntry struct {
	result    *Result
	expiresAt time.Time
}

// NewMemoryCache 创建进程内缓存
//
// maxTTL 是条目存活的上限；SetNX 传入更短的 TTL 时以较短者为准。
func NewMemoryCache(size int, maxTTL time.Duration) *MemoryCache {
	if size <= 0 {
		size = 10000
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, memoryEntry](size, nil, maxTTL),
		now: time.Now,
	}
}

// Get 读取缓存，返回结果的副本
func (c *MemoryCache) Get(_ context.Context, key string) (*Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok || c.expired(entry) {
		return nil, false, nil
	}
	return entry.result.clone(), true, nil
}

// SetNX 仅在键不存在（或已过期）时写入
func (c *MemoryCache) SetNX(_ context.Context, key string, result *Result, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.lru.Peek(key); ok && !c.expired(entry) {
		return nil
	}

	entry := memoryEntry{result: result.clone()}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.lru.Add(key, entry)
	return nil
}

// Len 返回当前条目数
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *MemoryCache) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}

// RedisCache 基于 Redis 的共享缓存
//
// 写入使用 SET NX EX，多个进程并发写同一键时只有第一个生效。
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache 创建 Redis 缓存
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// Get 读取缓存
func (c *RedisCache) Get(ctx context.Context, key string) (*Result, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", errors.ErrCacheUnavailable, err)
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("decode cached embedding %s: %w", key, err)
	}
	return &result, true, nil
}

// SetNX 仅在键不存在时写入
func (c *RedisCache) SetNX(ctx context.Context, key string, result *Result, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode embedding %s: %w", key, err)
	}
	if err := c.client.SetNX(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrCacheUnavailable, err)
	}
	return nil
}

// compile-time interface check
var _ Cache = (*MemoryCache)(nil)
var _ Cache = (*RedisCache)(nil)
