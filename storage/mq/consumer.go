package mq

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"FamilyWell/config"
	"FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
	mqotel "FamilyWell/pkg/mq"
)

// MessageHandler ctx 携带从消息头还原的 trace
type MessageHandler func(ctx context.Context, body []byte) error

type ConsumeOptions struct {
	Handler       MessageHandler
	Queue         string
	ConsumerTag   string
	PrefetchCount int
}

// Consume 阻塞消费直到 ctx 取消或 channel 关闭
// 处理失败 nack 并重新入队，SkipMessageError 直接 ack，消息体无法解析时进死信
func Consume(ctx context.Context, opts ConsumeOptions) error {
	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("RabbitMQ connection is nil or closed")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	ic, err := mqotel.NewInstrumentedChannel(ch, config.Cfg.ServiceName)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(opts.Queue, opts.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed for queue %s", opts.Queue)
			}

			start := time.Now()
			msgCtx, span := ic.StartDelivery(ctx, opts.Queue, msg)
			err := opts.Handler(msgCtx, msg.Body)
			ic.FinishDelivery(msgCtx, span, opts.Queue, start, ignoreSkip(err))

			var skip *errors.SkipMessageError
			var poison *errors.PoisonMessageError
			switch {
			case err == nil:
				_ = msg.Ack(false)
			case stderrors.As(err, &skip):
				logger.Logger.Info("Message skipped",
					zap.String("queue", opts.Queue),
					zap.String("reason", skip.Reason),
				)
				_ = msg.Ack(false)
			case stderrors.As(err, &poison):
				logger.Logger.Error("Dropping malformed message",
					zap.String("queue", opts.Queue),
					zap.Error(err),
				)
				_ = msg.Nack(false, false)
			default:
				logger.Logger.Error("Failed to process message",
					zap.String("queue", opts.Queue),
					zap.String("consumer_tag", opts.ConsumerTag),
					zap.Error(err),
				)
				_ = msg.Nack(false, true)
			}
		}
	}
}

func ignoreSkip(err error) error {
	var skip *errors.SkipMessageError
	if stderrors.As(err, &skip) {
		return nil
	}
	return err
}
