package database

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanKey  = "otel:span"
	startKey = "otel:start_time"
)

// 手机号密文与哈希不进 trace
var sensitiveColumns = regexp.MustCompile(`(?i)(phone_cipher|phone_hash)\s*=\s*('[^']*'|\$\d+|\?)`)

// PluginConfig 插件配置
type PluginConfig struct {
	ServiceName   string
	EnableMetrics bool
	MaxSQLLength  int
}

// DefaultPluginConfig 默认插件配置
func DefaultPluginConfig() PluginConfig {
	return PluginConfig{
		ServiceName:   "familywell",
		EnableMetrics: true,
		MaxSQLLength:  500,
	}
}

// OTELPlugin GORM OpenTelemetry 插件，统计按表与操作聚合
type OTELPlugin struct {
	tracer        trace.Tracer
	queriesTotal  metric.Int64Counter
	queryDuration metric.Float64Histogram
	config        PluginConfig
}

// NewOTELPlugin 创建插件实例，指标取自全局 MeterProvider
func NewOTELPlugin(config PluginConfig) (*OTELPlugin, error) {
	if config.ServiceName == "" {
		config.ServiceName = "familywell"
	}
	if config.MaxSQLLength <= 0 {
		config.MaxSQLLength = 500
	}

	meter := otel.Meter(config.ServiceName + ".gorm")
	queriesTotal, err := meter.Int64Counter(
		"db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return nil, err
	}

	return &OTELPlugin{
		tracer:        otel.Tracer(config.ServiceName + ".gorm"),
		queriesTotal:  queriesTotal,
		queryDuration: queryDuration,
		config:        config,
	}, nil
}

// Name 实现 gorm.Plugin 接口
func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

// Initialize 注册回调
func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	hooks := []struct {
		name     string
		register func(string, string) error
	}{
		{"query", func(b, a string) error {
			if err := cb.Query().Before("gorm:query").Register(b, p.before); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register(a, p.after)
		}},
		{"create", func(b, a string) error {
			if err := cb.Create().Before("gorm:create").Register(b, p.before); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register(a, p.after)
		}},
		{"update", func(b, a string) error {
			if err := cb.Update().Before("gorm:update").Register(b, p.before); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register(a, p.after)
		}},
		{"delete", func(b, a string) error {
			if err := cb.Delete().Before("gorm:delete").Register(b, p.before); err != nil {
				return err
			}
			return cb.Delete().After("gorm:delete").Register(a, p.after)
		}},
		{"row", func(b, a string) error {
			if err := cb.Row().Before("gorm:row").Register(b, p.before); err != nil {
				return err
			}
			return cb.Row().After("gorm:row").Register(a, p.after)
		}},
		{"raw", func(b, a string) error {
			if err := cb.Raw().Before("gorm:raw").Register(b, p.before); err != nil {
				return err
			}
			return cb.Raw().After("gorm:raw").Register(a, p.after)
		}},
	}

	for _, h := range hooks {
		if err := h.register("otel:before_"+h.name, "otel:after_"+h.name); err != nil {
			return err
		}
	}
	return nil
}

func (p *OTELPlugin) before(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := p.tracer.Start(ctx, "db."+tableOf(db),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", db.Dialector.Name()),
			attribute.String("db.table", tableOf(db)),
		),
	)

	db.InstanceSet(startKey, time.Now())
	db.InstanceSet(spanKey, span)
	db.Statement.Context = ctx
}

func (p *OTELPlugin) after(db *gorm.DB) {
	v, ok := db.InstanceGet(spanKey)
	if !ok {
		return
	}
	span, ok := v.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	operation := operationOf(db.Statement.SQL.String())
	span.SetName("db." + operation + " " + tableOf(db))
	span.SetAttributes(
		semconv.DBStatement(p.statement(db.Statement.SQL.String())),
		semconv.DBOperation(operation),
		attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
	)

	status := "success"
	switch {
	case db.Error == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(db.Error, gorm.ErrRecordNotFound):
		status = "not_found"
		span.SetStatus(codes.Ok, "record not found")
	default:
		status = "error"
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	if !p.config.EnableMetrics {
		return
	}

	start, _ := db.InstanceGet(startKey)
	startTime, ok := start.(time.Time)
	if !ok {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.table", tableOf(db)),
		attribute.String("db.status", status),
	)
	ctx := db.Statement.Context
	p.queriesTotal.Add(ctx, 1, attrs)
	p.queryDuration.Record(ctx, time.Since(startTime).Seconds(), attrs)
}

func (p *OTELPlugin) statement(sql string) string {
	if len(sql) > p.config.MaxSQLLength {
		sql = sql[:p.config.MaxSQLLength] + "..."
	}
	return sensitiveColumns.ReplaceAllString(sql, "$1=***")
}

func tableOf(db *gorm.DB) string {
	if db.Statement.Table != "" {
		return db.Statement.Table
	}
	return "unknown"
}

func operationOf(sql string) string {
	sql = strings.TrimSpace(sql)
	if i := strings.IndexByte(sql, ' '); i > 0 {
		sql = sql[:i]
	}
	switch op := strings.ToLower(sql); op {
	case "select", "insert", "update", "delete":
		return op
	default:
		return "query"
	}
}

// WithOTELPlugin 为 GORM 添加 OpenTelemetry 插件
func WithOTELPlugin(db *gorm.DB, config PluginConfig) error {
	plugin, err := NewOTELPlugin(config)
	if err != nil {
		return err
	}
	return db.Use(plugin)
}

// WithDefaultOTELPlugin 使用默认配置添加 OpenTelemetry 插件
func WithDefaultOTELPlugin(db *gorm.DB, serviceName string) error {
	config := DefaultPluginConfig()
	config.ServiceName = serviceName
	return WithOTELPlugin(db, config)
}
