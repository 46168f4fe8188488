package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"FamilyWell/config"
	"FamilyWell/pkg/logger"
	mqotel "FamilyWell/pkg/mq"
)

var (
	publisher *mqotel.InstrumentedChannel
	pubMutex  sync.Mutex // amqp.Channel 不支持并发发布
)

// getPublisher 懒创建发布 channel，channel 关闭后下次发布时重建
func getPublisher() (*mqotel.InstrumentedChannel, error) {
	if publisher != nil && !publisher.Channel().IsClosed() {
		return publisher, nil
	}

	if conn == nil || conn.IsClosed() {
		return nil, fmt.Errorf("RabbitMQ connection is nil or closed")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}

	ic, err := mqotel.NewInstrumentedChannel(ch, config.Cfg.ServiceName)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	publisher = ic

	logger.Logger.Info("Publisher channel created",
		zap.String("component", "rabbitmq"),
	)
	return publisher, nil
}

// PublishMessage 以 JSON 发布持久化消息
func PublishMessage(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	pubMutex.Lock()
	defer pubMutex.Unlock()

	ic, err := getPublisher()
	if err != nil {
		return err
	}

	err = ic.Publish(ctx, exchange, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		Body:         bodyBytes,
		MessageId:    messageID,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func closePublisher() {
	pubMutex.Lock()
	defer pubMutex.Unlock()

	if publisher != nil && !publisher.Channel().IsClosed() {
		_ = publisher.Channel().Close()
	}
	publisher = nil
}
