package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"FamilyWell/storage/redis"
)

const (
	tokenPrefix = "token"
)

func refreshKey(userID int64) string {
	return redis.Key(tokenPrefix, "refresh", strconv.FormatInt(userID, 10))
}

// SetRefreshToken 记录用户当前有效的 refresh token ID，新值覆盖旧值
// Key: fwell:token:refresh:{user_id}
func SetRefreshToken(ctx context.Context, userID int64, refreshID string, ttl time.Duration) error {
	client := redis.Client()
	if client == nil {
		return ErrRedisUnavailable
	}
	return client.Set(ctx, refreshKey(userID), refreshID, ttl).Err()
}

// RefreshTokenValid 只有最近签发的 refresh token 有效
func RefreshTokenValid(ctx context.Context, userID int64, refreshID string) (bool, error) {
	client := redis.Client()
	if client == nil {
		return false, ErrRedisUnavailable
	}

	stored, err := client.Get(ctx, refreshKey(userID)).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored == refreshID, nil
}

// DeleteRefreshToken 登出或 token 失效
func DeleteRefreshToken(ctx context.Context, userID int64) error {
	client := redis.Client()
	if client == nil {
		return ErrRedisUnavailable
	}
	return client.Del(ctx, refreshKey(userID)).Err()
}
