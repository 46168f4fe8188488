package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"FamilyWell/internal/model"
	"FamilyWell/pkg/logger"
	"FamilyWell/pkg/snowflake"
	"FamilyWell/storage/mq"
)

// publishFunc 与 mq.PublishMessage 同签名，测试中替换
type publishFunc func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error

// Publisher 把待投递通知发到 notification.dispatch 队列
type Publisher struct {
	publish publishFunc
	now     func() time.Time
}

func NewPublisher() *Publisher {
	return &Publisher{publish: mq.PublishMessage, now: time.Now}
}

// PublishDispatch 发布通知投递消息
func (p *Publisher) PublishDispatch(ctx context.Context, notificationID int64, source string) error {
	msg := model.NotificationDispatchMessage{
		MessageID:      snowflake.NextMessageID(),
		NotificationID: notificationID,
		Source:         source,
		EnqueuedAt:     p.now().UTC(),
	}
	if msg.MessageID == "" {
		// snowflake 未初始化时退回通知 ID，同一通知的重复消息由状态机挡住
		msg.MessageID = fmt.Sprintf("notification_%d", notificationID)
	}

	if err := p.publish(ctx, mq.NotificationExchange, mq.NotificationDispatchRK, msg.MessageID, msg); err != nil {
		logger.Logger.Error("Failed to publish notification dispatch message",
			zap.Int64("notification_id", notificationID),
			zap.String("source", source),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Debug("Published notification dispatch message",
		zap.String("message_id", msg.MessageID),
		zap.Int64("notification_id", notificationID),
		zap.String("source", source),
	)
	return nil
}
