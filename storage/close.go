package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"FamilyWell/pkg/logger"
	"FamilyWell/storage/database"
	"FamilyWell/storage/mq"
	"FamilyWell/storage/redis"
)

// Close 与 Init 顺序相反：MQ -> Redis -> Database，共用 15s 超时
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	closers := []struct {
		name  string
		close func(context.Context) error
	}{
		{"rabbitmq", mq.Close},
		{"redis", redis.Close},
		{"postgresql", database.Close},
	}

	for _, c := range closers {
		if err := c.close(ctx); err != nil {
			logger.Logger.Error("Failed to close storage connection", zap.String("backend", c.name), zap.Error(err))
			continue
		}
		logger.Logger.Info("Storage connection closed", zap.String("backend", c.name))
	}
}
