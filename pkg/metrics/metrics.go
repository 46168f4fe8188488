package metrics

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics 业务指标集合
type OTelMetrics struct {
	CheckinsTotal       metric.Int64Counter
	RecognitionDuration metric.Float64Histogram
	SweepRunsTotal      metric.Int64Counter
	SweepAffectedTotal  metric.Int64Counter
	AnomaliesTotal      metric.Int64Counter
	NotificationsTotal  metric.Int64Counter
	DispatchDuration    metric.Float64Histogram
}

var (
	metrics *OTelMetrics
	// 全局 meter 会代理到之后设置的 MeterProvider
	meter = otel.Meter("familywell")
)

// InitMetrics 初始化业务指标
func InitMetrics() error {
	m := &OTelMetrics{}
	var err error

	if m.CheckinsTotal, err = meter.Int64Counter(
		"checkins_total",
		metric.WithDescription("Total number of accepted check-ins"),
		metric.WithUnit("{checkin}"),
	); err != nil {
		return err
	}

	if m.RecognitionDuration, err = meter.Float64Histogram(
		"recognition_duration_seconds",
		metric.WithDescription("Time spent in face embedding and emotion classification"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return err
	}

	if m.SweepRunsTotal, err = meter.Int64Counter(
		"sweep_runs_total",
		metric.WithDescription("Total number of scheduled sweep runs"),
		metric.WithUnit("{run}"),
	); err != nil {
		return err
	}

	if m.SweepAffectedTotal, err = meter.Int64Counter(
		"sweep_affected_total",
		metric.WithDescription("Rows or notifications produced by sweeps"),
		metric.WithUnit("{item}"),
	); err != nil {
		return err
	}

	if m.AnomaliesTotal, err = meter.Int64Counter(
		"emotion_anomalies_total",
		metric.WithDescription("Total number of emotion anomalies raised"),
		metric.WithUnit("{anomaly}"),
	); err != nil {
		return err
	}

	if m.NotificationsTotal, err = meter.Int64Counter(
		"notifications_dispatched_total",
		metric.WithDescription("Total number of notification dispatch attempts"),
		metric.WithUnit("{notification}"),
	); err != nil {
		return err
	}

	if m.DispatchDuration, err = meter.Float64Histogram(
		"notification_dispatch_duration_seconds",
		metric.WithDescription("Time spent delivering one notification"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例，未初始化时为 nil
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordCheckin 记录一次成功打卡
func RecordCheckin(ctx context.Context, status string, faceVerified bool) {
	if metrics == nil {
		return
	}
	metrics.CheckinsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("face_verified", strconv.FormatBool(faceVerified)),
	))
}

// RecordRecognition 记录一次模型调用，op 为 embed 或 classify
func RecordRecognition(ctx context.Context, op, result string, d time.Duration) {
	if metrics == nil {
		return
	}
	metrics.RecognitionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

// RecordSweep 记录一次巡检运行
func RecordSweep(ctx context.Context, sweep, outcome string, affected int) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("sweep", sweep))
	metrics.SweepRunsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sweep", sweep),
		attribute.String("outcome", outcome),
	))
	if affected > 0 {
		metrics.SweepAffectedTotal.Add(ctx, int64(affected), attrs)
	}
}

// RecordAnomaly 记录一次情绪异常告警
func RecordAnomaly(ctx context.Context, kind string) {
	if metrics == nil {
		return
	}
	metrics.AnomaliesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordNotification 记录一次通知投递
func RecordNotification(ctx context.Context, channel, status string, d time.Duration) {
	if metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("status", status),
	)
	metrics.NotificationsTotal.Add(ctx, 1, attrs)
	metrics.DispatchDuration.Record(ctx, d.Seconds(), attrs)
}
