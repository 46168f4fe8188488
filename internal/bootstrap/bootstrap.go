// Package bootstrap 组装 server / worker / scheduler 共用的运行时依赖
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"FamilyWell/config"
	"FamilyWell/internal/middleware"
	"FamilyWell/internal/photostore"
	"FamilyWell/internal/queue"
	"FamilyWell/internal/recognition"
	"FamilyWell/internal/repository"
	"FamilyWell/internal/service"
	"FamilyWell/pkg/logger"
	"FamilyWell/pkg/mail"
	"FamilyWell/pkg/metrics"
	pkgotel "FamilyWell/pkg/otel"
	"FamilyWell/pkg/sms"
	"FamilyWell/storage/database"
)

// InitTelemetry 初始化 trace/metric provider 与业务指标
func InitTelemetry(ctx context.Context, component string) (func(context.Context) error, error) {
	shutdown, err := pkgotel.InitOpenTelemetry(ctx, pkgotel.Config{
		ServiceName:    config.Cfg.ServiceName + "-" + component,
		ServiceVersion: "1.0.0",
		Environment:    config.Cfg.Environment,
		OTLPEndpoint:   config.Cfg.OTLPEndpoint,
		SampleRatio:    config.Cfg.TracingSampler,
	})
	if err != nil {
		return nil, err
	}

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Failed to initialize business metrics", zap.Error(err))
	}
	if component == "server" {
		if err := middleware.InitMetrics(otel.Meter(config.Cfg.ServiceName + ".http")); err != nil {
			logger.Logger.Warn("Failed to initialize HTTP metrics", zap.Error(err))
		}
	}
	return shutdown, nil
}

// Options 各进程按需打开的依赖
type Options struct {
	Recognition bool // 人脸与表情模型
	Photos      bool
	Channels    bool // 邮件、推送、短信
}

// Runtime 组装好的依赖与清理函数
type Runtime struct {
	Deps    service.Deps
	cleanup []func()
}

func (r *Runtime) Close() {
	for i := len(r.cleanup) - 1; i >= 0; i-- {
		r.cleanup[i]()
	}
}

// Build 在 storage.Init 之后调用，最后调用 service.Setup
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	rt := &Runtime{}
	repos := repository.New(database.DB())

	d := service.Deps{
		Repos:     repos,
		Publisher: queue.NewPublisher(),
		Location:  cfg.Location(),
	}

	if opts.Recognition {
		mc, err := recognition.NewModelClient(cfg.ModelServerURL, time.Duration(cfg.ModelTimeoutSeconds)*time.Second)
		if err != nil {
			return nil, err
		}
		// 模型服务未就绪时进程照常启动，调用返回 MODEL_NOT_LOADED
		if err := mc.Load(ctx); err != nil {
			logger.Logger.Warn("Model server not ready", zap.String("url", cfg.ModelServerURL), zap.Error(err))
		}
		rt.cleanup = append(rt.cleanup, func() { _ = mc.Close() })

		d.Classifier = mc
		d.Verifier = recognition.NewIdentityVerifier(mc, repos.Faces, cfg.FaceMatchThreshold)
	}

	if opts.Photos {
		store, err := photostore.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize photo store: %w", err)
		}
		d.Photos = store
	}

	if opts.Channels {
		timeout := time.Duration(cfg.MailTimeoutSeconds) * time.Second
		d.Email = mail.NewMailer(cfg.MailURLs, timeout)

		pusher, err := mail.NewPusher(cfg.PushURLs, timeout)
		if err != nil {
			logger.Logger.Warn("Push channel disabled", zap.Error(err))
		} else if pusher != nil {
			d.Push = pusher
		}

		if err := sms.Init(); err != nil {
			logger.Logger.Warn("Failed to initialize SMS service", zap.Error(err))
			logger.Logger.Info("SMS service will be disabled, SMS features may not work")
		} else {
			d.SMS = sms.NewNotifier(sms.GetClient(), cfg.SMSSignName, cfg.SMSTemplateCode)
		}
	}

	rt.Deps = d
	service.Setup(d)
	return rt, nil
}
