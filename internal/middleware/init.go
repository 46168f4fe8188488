package middleware

import (
	"go.uber.org/zap"

	"FamilyWell/config"
	"FamilyWell/pkg/logger"
)

// Init 初始化鉴权中间件，须在 token.Init 之后调用；限流与 CORS 直接读取配置
func Init() error {
	if err := initAuthMiddleware(); err != nil {
		logger.Logger.Error("Failed to initialize auth middleware", zap.Error(err))
		return err
	}

	logger.Logger.Info("Middlewares initialized",
		zap.Bool("rate_limit", config.Cfg.RateLimitEnabled),
		zap.Int("rate_limit_per_minute", config.Cfg.RateLimitPerMinute),
		zap.Int("upload_per_minute", config.Cfg.UploadPerMinute),
		zap.Strings("allowed_origins", config.Cfg.AllowedOrigins),
	)
	return nil
}
