package sms

import (
	"context"
	"encoding/json"
	"fmt"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	openapiutil "github.com/alibabacloud-go/openapi-util/service"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	credential "github.com/aliyun/credentials-go/credentials"
	"go.uber.org/zap"

	"FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
)

type AliyunClient struct {
	client *openapi.Client
}

// NewAliyunClient 创建阿里云 SMS 客户端
// 凭据从 ALIBABA_CLOUD_ACCESS_KEY_ID / ALIBABA_CLOUD_ACCESS_KEY_SECRET 读取
func NewAliyunClient() (*AliyunClient, error) {
	cred, err := credential.NewCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun credential: %w", err)
	}

	client, err := openapi.NewClient(&openapi.Config{
		Credential: cred,
		Endpoint:   tea.String("dysmsapi.aliyuncs.com"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun client: %w", err)
	}

	return &AliyunClient{client: client}, nil
}

func (c *AliyunClient) apiInfo(action string) *openapi.Params {
	return &openapi.Params{
		Action:      tea.String(action),
		Version:     tea.String("2017-05-25"),
		Protocol:    tea.String("HTTPS"),
		Method:      tea.String("POST"),
		AuthType:    tea.String("AK"),
		Style:       tea.String("RPC"),
		Pathname:    tea.String("/"),
		ReqBodyType: tea.String("json"),
		BodyType:    tea.String("json"),
	}
}

// SendSingle 发送单条短信
func (c *AliyunClient) SendSingle(ctx context.Context, phone, signName, templateCode, templateParam string) (*SendResponse, error) {
	if signName == "" {
		return nil, errors.ErrSignNameRequired
	}
	if templateCode == "" {
		return nil, errors.ErrTemplateCodeRequired
	}

	queries := map[string]interface{}{
		"PhoneNumbers":  tea.String(phone),
		"SignName":      tea.String(signName),
		"TemplateCode":  tea.String(templateCode),
		"TemplateParam": tea.String(templateParam),
	}

	resp, err := c.client.CallApi(c.apiInfo("SendSms"), &openapi.OpenApiRequest{
		Query: openapiutil.Query(queries),
	}, &util.RuntimeOptions{})
	if err != nil {
		logger.Logger.Error("Failed to send SMS",
			zap.String("template", templateCode),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to send SMS: %w", err)
	}

	if statusCode, ok := resp["statusCode"].(int); ok && statusCode != 200 {
		return nil, fmt.Errorf("SMS API error: statusCode=%d", statusCode)
	}

	result := &SendResponse{Provider: "aliyun"}
	if body := resp["body"]; body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to read SMS response: %w", err)
		}
		var parsed struct {
			Code      string `json:"Code"`
			Message   string `json:"Message"`
			BizID     string `json:"BizId"`
			RequestID string `json:"RequestId"`
		}
		if err := json.Unmarshal(raw, &parsed); err == nil {
			result.Code = parsed.Code
			result.Message = parsed.Message
			result.BizID = parsed.BizID
			result.RequestID = parsed.RequestID
		}
	}

	if result.Code != "" && result.Code != "OK" {
		logger.Logger.Warn("SMS send rejected",
			zap.String("code", result.Code),
			zap.String("message", result.Message),
			zap.String("request_id", result.RequestID),
		)
		return result, fmt.Errorf("SMS send failed: %s - %s", result.Code, result.Message)
	}

	logger.Logger.Info("SMS sent successfully",
		zap.String("template", templateCode),
		zap.String("biz_id", result.BizID),
	)
	return result, nil
}
