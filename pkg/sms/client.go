package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"FamilyWell/config"
	"FamilyWell/pkg/logger"
)

// 模板变量长度上限，阿里云单个变量不超过 35 个字符
const maxParamRunes = 35

// SendResponse 短信发送响应
type SendResponse struct {
	BizID     string // 阿里云返回的 BizId
	Code      string // 业务状态码，成功为 OK
	Message   string
	RequestID string
	Provider  string
}

// Client SMS 客户端接口
type Client interface {
	// SendSingle 发送单条短信，templateParam 为 JSON 字符串
	SendSingle(ctx context.Context, phone, signName, templateCode, templateParam string) (*SendResponse, error)
}

var (
	smsClient Client
	smsOnce   sync.Once
	smsErr    error
)

// Init 初始化 SMS 客户端
func Init() error {
	smsOnce.Do(func() {
		cfg := config.Cfg

		switch cfg.SMSProvider {
		case "aliyun":
			smsClient, smsErr = NewAliyunClient()
		case "mock":
			smsClient = NewMockClient()
		default:
			smsErr = fmt.Errorf("unsupported SMS provider: %s", cfg.SMSProvider)
		}

		if smsErr != nil {
			logger.Logger.Error("Failed to initialize SMS client", zap.Error(smsErr))
			return
		}

		logger.Logger.Info("SMS client initialized successfully",
			zap.String("provider", cfg.SMSProvider),
		)
	})

	return smsErr
}

// GetClient 未初始化时返回 nil
func GetClient() Client {
	return smsClient
}

// Notifier 用配置中的签名与模板发送通知短信
type Notifier struct {
	client       Client
	signName     string
	templateCode string
}

func NewNotifier(client Client, signName, templateCode string) *Notifier {
	return &Notifier{client: client, signName: signName, templateCode: templateCode}
}

// Notify 模板变量为 subject 与 content，超长部分截断
func (n *Notifier) Notify(ctx context.Context, phone, subject, content string) error {
	if n.client == nil {
		return fmt.Errorf("sms client not initialized")
	}

	param, err := json.Marshal(map[string]string{
		"subject": truncate(subject),
		"content": truncate(content),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal template param: %w", err)
	}

	_, err = n.client.SendSingle(ctx, phone, n.signName, n.templateCode, string(param))
	return err
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxParamRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxParamRunes-1]) + "…"
}
