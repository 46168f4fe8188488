package cache

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"FamilyWell/storage/redis"
)

// ErrRedisUnavailable Redis 未初始化
var ErrRedisUnavailable = errors.New("redis client is not initialized")

const (
	lockPrefix = "lock"
)

// 只删除自己持有的锁
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryLock 通过 SETNX 获取分布式锁，防止多个 scheduler 副本重复执行同一巡检
func TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	client := redis.Client()
	if client == nil {
		return false, ErrRedisUnavailable
	}

	var ok bool
	err := RedisBreaker.Call(ctx, func() error {
		var err error
		ok, err = client.SetNX(ctx, redis.Key(lockPrefix, key), owner, ttl).Result()
		return err
	})
	return ok, err
}

func Unlock(ctx context.Context, key, owner string) error {
	client := redis.Client()
	if client == nil {
		return ErrRedisUnavailable
	}
	return unlockScript.Run(ctx, client, []string{redis.Key(lockPrefix, key)}, owner).Err()
}
