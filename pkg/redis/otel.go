package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook Redis 追踪 Hook
type TracingHook struct {
	tracer          trace.Tracer
	commandsTotal   metric.Int64Counter
	commandDuration metric.Float64Histogram
	attrs           []attribute.KeyValue
}

// NewTracingHook 创建追踪 Hook，指标取自全局 MeterProvider
func NewTracingHook(serviceName string, db int) (*TracingHook, error) {
	meter := otel.Meter(serviceName + ".redis")

	commandsTotal, err := meter.Int64Counter(
		"redis.commands.total",
		metric.WithDescription("Total number of Redis commands"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, err
	}

	commandDuration, err := meter.Float64Histogram(
		"redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	if err != nil {
		return nil, err
	}

	return &TracingHook{
		tracer:          otel.Tracer(serviceName + ".redis"),
		commandsTotal:   commandsTotal,
		commandDuration: commandDuration,
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
		},
	}, nil
}

// DialHook 实现 redis.Hook 接口
func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

// ProcessHook 实现 redis.Hook 接口
func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis."+cmd.Name(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		span.SetAttributes(semconv.DBOperation(cmd.Name()))
		if key := firstKey(cmd.Args()); key != "" {
			span.SetAttributes(attribute.String("redis.key", key))
		}

		start := time.Now()
		err := next(ctx, cmd)

		status := statusOf(span, err)
		attrs := metric.WithAttributes(
			attribute.String("redis.command", cmd.Name()),
			attribute.String("redis.status", status),
		)
		th.commandsTotal.Add(ctx, 1, attrs)
		th.commandDuration.Record(ctx, time.Since(start).Seconds(), attrs)

		return err
	}
}

// ProcessPipelineHook 实现 redis.Hook 接口
func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		span.SetAttributes(
			attribute.Int("redis.pipeline.count", len(cmds)),
			attribute.String("redis.pipeline.commands", strings.Join(names, ",")),
		)

		start := time.Now()
		err := next(ctx, cmds)

		attrs := metric.WithAttributes(
			attribute.String("redis.command", "pipeline"),
			attribute.String("redis.status", statusOf(span, err)),
		)
		th.commandsTotal.Add(ctx, 1, attrs)
		th.commandDuration.Record(ctx, time.Since(start).Seconds(), attrs)

		return err
	}
}

func statusOf(span trace.Span, err error) string {
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
		return "success"
	case errors.Is(err, redis.Nil):
		span.SetStatus(codes.Ok, "key not found")
		return "not_found"
	default:
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return "error"
	}
}

// firstKey 取命令的第一个键，token 类键只保留前缀
func firstKey(args []interface{}) string {
	if len(args) < 2 {
		return ""
	}
	key, ok := args[1].(string)
	if !ok {
		return ""
	}
	if i := strings.Index(key, ":token:"); i >= 0 {
		return key[:i] + ":token:***"
	}
	if len(key) > 100 {
		return key[:100] + "..."
	}
	return key
}
