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
	"FamilyWell/internal/cache"
	"FamilyWell/internal/schedule"
	"FamilyWell/internal/service"
	"FamilyWell/pkg/logger"
	"FamilyWell/pkg/snowflake"
	"FamilyWell/storage"
)

// 去重 key 保留两天，覆盖跨日的补跑
const dedupeTTL = 48 * time.Hour

func main() {

	logger.Init("scheduler")
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownTelemetry, err := bootstrap.InitTelemetry(ctx, "scheduler")
	if err != nil {
		logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = shutdownTelemetry(flushCtx)
	}()

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	// dispatch_pending 巡检会直接投递，需要渠道
	rt, err := bootstrap.Build(ctx, &config.Cfg, bootstrap.Options{Channels: true})
	if err != nil {
		logger.Logger.Fatal("Failed to initialize services for scheduler", zap.Error(err))
	}
	defer rt.Close()

	sweeper := schedule.NewSweeper(schedule.Options{
		Repos:         rt.Deps.Repos,
		Notifications: service.Notification(),
		Deduper:       cache.NewRedisDeduper(dedupeTTL),
		Location:      config.Cfg.Location(),
		Policy:        schedule.PolicyFromConfig(&config.Cfg),
		Grace:         config.Cfg.GraceWindow(),
	})

	jobs, err := schedule.DefaultJobs(&config.Cfg, sweeper, service.NotificationDispatcher(), service.Notification())
	if err != nil {
		// 单个时间配置错误只跳过对应任务
		logger.Logger.Error("Some sweep jobs are misconfigured", zap.Error(err))
	}

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
		zap.Int("jobs", len(jobs)),
	)

	schedule.NewRunner(jobs, nil).Start(ctx)

	logger.Logger.Info("Scheduler service shutting down gracefully")
}
