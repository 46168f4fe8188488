package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"FamilyWell/internal/cache"
	"FamilyWell/internal/model"
	"FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
	"FamilyWell/storage/mq"
)

// Dispatcher 按通知 ID 投递
type Dispatcher interface {
	Dispatch(ctx context.Context, id int64) error
}

// MessageMarker 消息幂等标记，默认实现基于 Redis SETNX
type MessageMarker interface {
	TryMark(ctx context.Context, messageID string) (bool, error)
	Unmark(ctx context.Context, messageID string) error
	Done(ctx context.Context, messageID string) error
}

type redisMarker struct{}

func (redisMarker) TryMark(ctx context.Context, messageID string) (bool, error) {
	return cache.TryMarkMessageProcessing(ctx, messageID, 24*time.Hour)
}

func (redisMarker) Unmark(ctx context.Context, messageID string) error {
	return cache.UnmarkMessageProcessing(ctx, messageID)
}

func (redisMarker) Done(ctx context.Context, messageID string) error {
	return cache.MarkMessageProcessed(ctx, messageID, 48*time.Hour)
}

// NewDispatchHandler 解析投递消息并交给 Dispatcher
func NewDispatchHandler(d Dispatcher, marker MessageMarker) mq.MessageHandler {
	if marker == nil {
		marker = redisMarker{}
	}

	return func(ctx context.Context, body []byte) error {
		var msg model.NotificationDispatchMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return &errors.PoisonMessageError{Err: fmt.Errorf("failed to unmarshal dispatch message: %w", err)}
		}
		if msg.NotificationID <= 0 {
			return &errors.PoisonMessageError{Err: fmt.Errorf("invalid notification id %d", msg.NotificationID)}
		}

		processing, err := marker.TryMark(ctx, msg.MessageID)
		if err != nil {
			// Redis 不可用时继续处理，重复投递由通知状态挡住
			logger.Logger.Warn("Failed to check message processed status",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		} else if !processing {
			return &errors.SkipMessageError{Reason: fmt.Sprintf("Message %s already processed", msg.MessageID)}
		}

		logger.Logger.Info("Processing notification dispatch",
			zap.String("message_id", msg.MessageID),
			zap.Int64("notification_id", msg.NotificationID),
			zap.String("source", msg.Source),
		)

		err = d.Dispatch(ctx, msg.NotificationID)
		switch {
		case err == nil:
		case stderrors.Is(err, errors.NotificationNotFound):
			return &errors.SkipMessageError{Reason: fmt.Sprintf("notification %d not found", msg.NotificationID)}
		default:
			var skip *errors.SkipMessageError
			if stderrors.As(err, &skip) {
				return err
			}
			// 处理失败，取消标记，允许重试
			if uerr := marker.Unmark(ctx, msg.MessageID); uerr != nil {
				logger.Logger.Warn("Failed to unmark message", zap.String("message_id", msg.MessageID), zap.Error(uerr))
			}
			return fmt.Errorf("failed to dispatch notification %d: %w", msg.NotificationID, err)
		}

		if err := marker.Done(ctx, msg.MessageID); err != nil {
			logger.Logger.Warn("Failed to mark message as processed",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		}
		return nil
	}
}

// StartNotificationDispatchConsumer 启动通知投递消费者，阻塞直到 ctx 取消
func StartNotificationDispatchConsumer(ctx context.Context, d Dispatcher) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.NotificationDispatchQ,
		ConsumerTag:   "notification_dispatch_consumer",
		PrefetchCount: 10,
		Handler:       NewDispatchHandler(d, nil),
	})
}
