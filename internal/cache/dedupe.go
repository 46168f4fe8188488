package cache

import (
	"context"
	"time"

	"FamilyWell/storage/redis"
)

const (
	dedupePrefix = "dedupe"

	// DefaultDedupeTTL 覆盖一整天的巡检，再留出跨时区余量
	DefaultDedupeTTL = 36 * time.Hour
)

// RedisDeduper 用 SETNX 记录已发出的提醒，同一个 key 只放行一次
type RedisDeduper struct {
	ttl time.Duration
}

func NewRedisDeduper(ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{ttl: ttl}
}

// Claim 首次出现返回 true；Redis 不可用时返回 true 和错误，由调用方决定是否继续
func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	client := redis.Client()
	if client == nil {
		return true, ErrRedisUnavailable
	}

	claimed := true
	err := RedisBreaker.Call(ctx, func() error {
		var err error
		claimed, err = client.SetNX(ctx, redis.Key(dedupePrefix, key), 1, d.ttl).Result()
		return err
	})
	if err != nil {
		return true, err
	}
	return claimed, nil
}

// Release 归还已领取的 key，通知没有写成功时调用，下一次巡检可以重发
func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	client := redis.Client()
	if client == nil {
		return ErrRedisUnavailable
	}
	return RedisBreaker.Call(ctx, func() error {
		return client.Del(ctx, redis.Key(dedupePrefix, key)).Err()
	})
}
