package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"FamilyWell/storage/redis"
)

const (
	// 空值缓存标识
	emptyValueFlag = "__EMPTY__"
	// 空值缓存TTL，较短时间避免长期占用
	emptyValueTTL = 5 * time.Minute
	// TTL 随机抖动上限，避免同一批 key 同时过期
	ttlJitterMax = 30 * time.Second
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// ProtectedCache JSON 缓存，带空值保护与过期抖动
type ProtectedCache struct {
	keyPrefix string
	ttl       time.Duration
	emptyTTL  time.Duration
}

// NewProtectedCache 创建受保护的缓存实例
func NewProtectedCache(keyPrefix string, ttl time.Duration) *ProtectedCache {
	return &ProtectedCache{
		keyPrefix: keyPrefix,
		ttl:       ttl,
		emptyTTL:  emptyValueTTL,
	}
}

func (pc *ProtectedCache) key(key string) string {
	return redis.Key(pc.keyPrefix, key)
}

// Set value 为 nil 时写入空值标识
func (pc *ProtectedCache) Set(ctx context.Context, key string, value interface{}) error {
	client := redis.Client()
	if client == nil {
		return ErrRedisUnavailable
	}

	data := emptyValueFlag
	ttl := pc.emptyTTL
	if value != nil {
		b, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal cache value: %w", err)
		}
		data = string(b)
		ttl = pc.ttl + time.Duration(rand.Int63n(int64(ttlJitterMax)))
	}

	return RedisBreaker.Call(ctx, func() error {
		return client.Set(ctx, pc.key(key), data, ttl).Err()
	})
}

// Get 命中返回 (true, nil)；命中空值时 dest 不变，found 为 false
func (pc *ProtectedCache) Get(ctx context.Context, key string, dest interface{}) (found bool, err error) {
	client := redis.Client()
	if client == nil {
		return false, ErrRedisUnavailable
	}

	var data string
	err = RedisBreaker.Call(ctx, func() error {
		var err error
		data, err = client.Get(ctx, pc.key(key)).Result()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to get cache: %w", err)
	}
	if data == "" {
		return false, ErrCacheMiss
	}
	if data == emptyValueFlag {
		return false, nil
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

// Delete 删除缓存
func (pc *ProtectedCache) Delete(ctx context.Context, key string) error {
	client := redis.Client()
	if client == nil {
		return ErrRedisUnavailable
	}
	return client.Del(ctx, pc.key(key)).Err()
}

// ProfileCache 用户资料缓存，联系方式或人脸注册变更时失效
var ProfileCache = NewProtectedCache("user:profile", 10*time.Minute)
