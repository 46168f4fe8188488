package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"FamilyWell/config"
	"FamilyWell/internal/bootstrap"
	"FamilyWell/internal/queue"
	"FamilyWell/internal/service"
	"FamilyWell/pkg/logger"
	"FamilyWell/pkg/snowflake"
	"FamilyWell/storage"
)

func main() {

	logger.Init("worker")
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownTelemetry, err := bootstrap.InitTelemetry(ctx, "worker")
	if err != nil {
		logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = shutdownTelemetry(flushCtx)
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	// worker 与 server 应使用不同的 machine id
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	rt, err := bootstrap.Build(ctx, &config.Cfg, bootstrap.Options{Channels: true})
	if err != nil {
		logger.Logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer rt.Close()

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	// 阻塞直到 ctx 取消
	if err := queue.StartNotificationDispatchConsumer(ctx, service.NotificationDispatcher()); err != nil && ctx.Err() == nil {
		logger.Logger.Error("Notification dispatch consumer stopped", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
