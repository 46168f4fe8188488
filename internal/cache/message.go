package cache

import (
	"context"
	"fmt"
	"time"

	"FamilyWell/storage/redis"
)

const (
	messageProcessedPrefix = "message:processed"

	processedTTL = 48 * time.Hour
)

// TryMarkMessageProcessing 尝试原子性地标记消息正在处理（使用 SETNX）
// 返回 true 表示成功标记（首次处理），false 表示已被标记（重复消息或正在处理）
func TryMarkMessageProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	client := redis.Client()
	if client == nil {
		return false, ErrRedisUnavailable
	}
	if ttl <= 0 {
		ttl = processedTTL
	}

	result, err := client.SetNX(ctx, redis.Key(messageProcessedPrefix, messageID), "processing", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processing: %w", err)
	}
	return result, nil
}

// UnmarkMessageProcessing 处理失败时清除标记，允许重试
func UnmarkMessageProcessing(ctx context.Context, messageID string) error {
	client := redis.Client()
	if client == nil {
		return ErrRedisUnavailable
	}
	return client.Del(ctx, redis.Key(messageProcessedPrefix, messageID)).Err()
}

// MarkMessageProcessed 处理成功后更新状态并延长 TTL
func MarkMessageProcessed(ctx context.Context, messageID string, ttl time.Duration) error {
	client := redis.Client()
	if client == nil {
		return ErrRedisUnavailable
	}
	if ttl <= 0 {
		ttl = processedTTL
	}
	return client.Set(ctx, redis.Key(messageProcessedPrefix, messageID), "completed", ttl).Err()
}
