package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	NotificationExchange   = "familywell.notification"
	NotificationDispatchRK = "notification.dispatch"
	NotificationDispatchQ  = "notification.dispatch"
	deadLetterExchange     = "familywell.dlx"
	deadLetterQueue        = "notification.dispatch.dead"
)

// declareTopology 声明通知投递所需的交换机与队列，重复声明是幂等的
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(NotificationExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", NotificationExchange, err)
	}
	if err := ch.ExchangeDeclare(deadLetterExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", deadLetterExchange, err)
	}

	if _, err := ch.QueueDeclare(deadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", deadLetterQueue, err)
	}
	if err := ch.QueueBind(deadLetterQueue, "", deadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", deadLetterQueue, err)
	}

	if _, err := ch.QueueDeclare(NotificationDispatchQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": deadLetterExchange,
	}); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", NotificationDispatchQ, err)
	}
	if err := ch.QueueBind(NotificationDispatchQ, NotificationDispatchRK, NotificationExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", NotificationDispatchQ, err)
	}

	return nil
}
