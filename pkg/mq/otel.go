package mq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedChannel 包装 amqp.Channel，发布时注入追踪头，消费时还原
type InstrumentedChannel struct {
	ch              *amqp.Channel
	propagators     propagation.TextMapPropagator
	tracer          trace.Tracer
	messagesTotal   metric.Int64Counter
	messageDuration metric.Float64Histogram
}

// NewInstrumentedChannel 创建带有 OpenTelemetry 支持的 Channel
func NewInstrumentedChannel(ch *amqp.Channel, serviceName string) (*InstrumentedChannel, error) {
	meter := otel.Meter(serviceName + ".rabbitmq")

	messagesTotal, err := meter.Int64Counter(
		"mq.messages.total",
		metric.WithDescription("Total number of RabbitMQ messages"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, err
	}

	messageDuration, err := meter.Float64Histogram(
		"mq.message.duration",
		metric.WithDescription("RabbitMQ publish / handle duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedChannel{
		ch:              ch,
		propagators:     otel.GetTextMapPropagator(),
		tracer:          otel.Tracer(serviceName + ".rabbitmq"),
		messagesTotal:   messagesTotal,
		messageDuration: messageDuration,
	}, nil
}

// Channel 返回原始的 amqp.Channel
func (ic *InstrumentedChannel) Channel() *amqp.Channel {
	return ic.ch
}

// Publish 发布消息并注入追踪上下文
func (ic *InstrumentedChannel) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	start := time.Now()

	ctx, span := ic.tracer.Start(ctx, "rabbitmq.publish "+routingKey,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			attribute.String("messaging.rabbitmq.exchange", exchange),
			semconv.MessagingRabbitmqDestinationRoutingKey(routingKey),
			semconv.MessagingMessageID(msg.MessageId),
		),
	)
	defer span.End()

	headers := make(amqp.Table, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	ic.propagators.Inject(ctx, &MessageHeaderCarrier{Headers: headers})
	msg.Headers = headers

	err := ic.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
	ic.record(ctx, span, "publish", routingKey, start, err)
	return err
}

// StartDelivery 从消息头还原上游 trace，为单条消息开启处理 span
func (ic *InstrumentedChannel) StartDelivery(ctx context.Context, queue string, msg amqp.Delivery) (context.Context, trace.Span) {
	ctx = ic.propagators.Extract(ctx, &MessageHeaderCarrier{Headers: msg.Headers})
	return ic.tracer.Start(ctx, "rabbitmq.process "+queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			semconv.MessagingDestinationName(queue),
			semconv.MessagingRabbitmqDestinationRoutingKey(msg.RoutingKey),
			semconv.MessagingMessageID(msg.MessageId),
		),
	)
}

// FinishDelivery 结束处理 span 并记录指标
func (ic *InstrumentedChannel) FinishDelivery(ctx context.Context, span trace.Span, queue string, start time.Time, err error) {
	defer span.End()
	ic.record(ctx, span, "process", queue, start, err)
}

func (ic *InstrumentedChannel) record(ctx context.Context, span trace.Span, operation, destination string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	attrs := metric.WithAttributes(
		attribute.String("messaging.operation", operation),
		attribute.String("messaging.destination", destination),
		attribute.String("messaging.status", status),
	)
	ic.messagesTotal.Add(ctx, 1, attrs)
	ic.messageDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

// MessageHeaderCarrier 实现 propagation.TextMapCarrier 接口
type MessageHeaderCarrier struct {
	Headers amqp.Table
}

func (m *MessageHeaderCarrier) Get(key string) string {
	if val, ok := m.Headers[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func (m *MessageHeaderCarrier) Set(key, value string) {
	if m.Headers == nil {
		m.Headers = make(amqp.Table)
	}
	m.Headers[key] = value
}

func (m *MessageHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	return keys
}
