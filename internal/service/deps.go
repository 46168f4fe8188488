package service

import (
	"context"
	"time"

	"FamilyWell/config"
	"FamilyWell/internal/photostore"
	"FamilyWell/internal/recognition"
	"FamilyWell/internal/repository"
)

// DispatchPublisher 把待投递通知的 ID 投递到消息队列
type DispatchPublisher interface {
	PublishDispatch(ctx context.Context, notificationID int64, source string) error
}

// EmailSender 邮件渠道
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// PushSender 推送渠道，广播到配置的推送地址
type PushSender interface {
	Send(ctx context.Context, subject, body string) error
}

// SMSSender 短信渠道
type SMSSender interface {
	Notify(ctx context.Context, phone, subject, content string) error
}

// Deps 服务依赖，进程启动时组装，测试中替换为假实现
type Deps struct {
	Repos      *repository.Repositories
	Photos     photostore.Store
	Verifier   recognition.Verifier
	Classifier recognition.Classifier
	Publisher  DispatchPublisher
	Email      EmailSender
	Push       PushSender
	SMS        SMSSender

	Clock          func() time.Time
	Location       *time.Location
	Grace          time.Duration
	AlertThreshold float64
	MaxFaceImages  int
}

// withDefaults 未设置的参数取配置值
func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Location == nil {
		d.Location = config.Cfg.Location()
	}
	if d.Grace <= 0 {
		d.Grace = config.Cfg.GraceWindow()
	}
	if d.AlertThreshold <= 0 {
		d.AlertThreshold = config.Cfg.EmotionAlertThreshold
	}
	if d.MaxFaceImages <= 0 {
		d.MaxFaceImages = config.Cfg.MaxFaceImages
	}
	return d
}

var deps Deps

// Setup 在访问任何服务单例之前调用一次
func Setup(d Deps) {
	deps = d.withDefaults()
}
