package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"FamilyWell/config"
	"FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
	"FamilyWell/pkg/response"
	"FamilyWell/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 限流键前缀
	KeyPrefix string
	// 时间窗口（秒）
	Window int
	// 时间窗口内最大请求数
	MaxRequests int
	// 超过限制后禁止访问的时长（秒），0 表示不封禁
	BlockDuration int
	// 是否按用户ID限流（需要认证）
	ByUserID bool
	// 是否按IP限流
	ByIP bool
}

// DefaultRateLimitConfig 已认证接口的通用限流
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		KeyPrefix:   "rate:limit",
		Window:      60,
		MaxRequests: config.Cfg.RateLimitPerMinute,
		ByUserID:    true,
		ByIP:        true,
	}
}

// UploadRateLimitConfig 打卡、人脸录入等上传照片的接口，模型推理开销大
func UploadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		KeyPrefix:     "rate:upload",
		Window:        60,
		MaxRequests:   config.Cfg.UploadPerMinute,
		BlockDuration: 300,
		ByUserID:      true,
	}
}

// AuthRateLimitConfig 刷新 token 按 IP 限流
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		KeyPrefix:     "rate:auth",
		Window:        60,
		MaxRequests:   10,
		BlockDuration: 900,
		ByIP:          true,
	}
}

// RateLimiter 基于 Redis zset 的滑动窗口限流器
type RateLimiter struct {
	client *redislib.Client
	config RateLimitConfig
}

func NewRateLimiter(client *redislib.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{client: client, config: config}
}

// identifier 优先按用户，其次按 IP
func (rl *RateLimiter) identifier(ctx context.Context, c *app.RequestContext) string {
	if rl.config.ByUserID {
		if userID, ok := GetUserID(ctx, c); ok {
			return "user:" + strconv.FormatInt(userID, 10)
		}
	}
	if rl.config.ByIP {
		return "ip:" + c.ClientIP()
	}
	return ""
}

// Allow 检查是否允许请求，返回窗口内的请求数
func (rl *RateLimiter) Allow(ctx context.Context, id string, now time.Time) (bool, int, error) {
	key := redis.Key(rl.config.KeyPrefix, id)
	windowStart := now.Add(-time.Duration(rl.config.Window) * time.Second)

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	zcard := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, time.Duration(rl.config.Window+10)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcard.Val())
	return count <= rl.config.MaxRequests, count, nil
}

func (rl *RateLimiter) blockKey(id string) string {
	return redis.Key(rl.config.KeyPrefix, "block", id)
}

func (rl *RateLimiter) Block(ctx context.Context, id string) error {
	if rl.config.BlockDuration <= 0 {
		return nil
	}
	return rl.client.Set(ctx, rl.blockKey(id), "1", time.Duration(rl.config.BlockDuration)*time.Second).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, id string) (bool, error) {
	if rl.config.BlockDuration <= 0 {
		return false, nil
	}
	n, err := rl.client.Exists(ctx, rl.blockKey(id)).Result()
	return n > 0, err
}

// RateLimitMiddleware Redis 未初始化或关闭限流时直接放行
func RateLimitMiddleware(cfg RateLimitConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		client := redis.Client()
		if !config.Cfg.RateLimitEnabled || client == nil || cfg.MaxRequests <= 0 {
			c.Next(ctx)
			return
		}

		limiter := NewRateLimiter(client, cfg)
		id := limiter.identifier(ctx, c)
		if id == "" {
			c.Next(ctx)
			return
		}

		blocked, err := limiter.IsBlocked(ctx, id)
		if err != nil {
			logger.Logger.Warn("Failed to check block status, allowing request", zap.Error(err))
			c.Next(ctx)
			return
		}
		if blocked {
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		now := time.Now()
		allowed, count, err := limiter.Allow(ctx, id, now)
		if err != nil {
			logger.Logger.Warn("Failed to check rate limit, allowing request", zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := cfg.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(time.Duration(cfg.Window)*time.Second).Unix(), 10))

		if !allowed {
			if err := limiter.Block(ctx, id); err != nil {
				logger.Logger.Error("Failed to block client", zap.String("id", id), zap.Error(err))
			}
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}

func GeneralRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(DefaultRateLimitConfig())
}

func UploadRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(UploadRateLimitConfig())
}

func AuthRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(AuthRateLimitConfig())
}
