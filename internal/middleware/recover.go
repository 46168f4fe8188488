package middleware

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"FamilyWell/config"
	"FamilyWell/pkg/errors"
	"FamilyWell/pkg/logger"
	"FamilyWell/pkg/response"
)

// RecoverConfig recover 中间件配置
type RecoverConfig struct {
	// 堆栈追踪级别（full, simple, none）
	StackTraceLevel string
	// 是否记录请求详情
	LogRequestDetails bool
	// 是否在 span 中记录异常
	RecordInSpan bool
	// 是否在响应中返回 panic 详情，仅开发环境开启
	ExposeDetails bool
}

func NewRecoverConfig() RecoverConfig {
	return RecoverConfig{
		StackTraceLevel:   "simple",
		LogRequestDetails: true,
		RecordInSpan:      true,
		ExposeDetails:     !config.Cfg.IsProduction(),
	}
}

func RecoverMiddleware() app.HandlerFunc {
	return RecoverMiddlewareWithConfig(NewRecoverConfig())
}

func RecoverMiddlewareWithConfig(cfg RecoverConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				handlePanic(ctx, c, err, cfg)
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, err interface{}, cfg RecoverConfig) {
	stack := getStackTrace(cfg.StackTraceLevel)

	logPanic(ctx, c, err, stack, cfg)

	if cfg.RecordInSpan {
		span := trace.SpanFromContext(ctx)
		span.RecordError(fmt.Errorf("panic: %v", err))
		span.SetStatus(codes.Error, "panic recovered")
	}

	def := errors.Definition{
		Code:    "INTERNAL_SERVER_ERROR",
		Message: "服务器内部错误，请稍后重试",
	}
	if !cfg.ExposeDetails {
		response.Error(ctx, c, def)
		c.Abort()
		return
	}

	def.Message = fmt.Sprintf("Internal error: %v", err)
	response.ErrorWithDetails(ctx, c, def, map[string]interface{}{
		"panic":     fmt.Sprintf("%v", err),
		"timestamp": time.Now().Format(time.RFC3339),
		"stack":     string(stack),
	})
	c.Abort()
}

// getStackTrace 获取堆栈追踪
func getStackTrace(level string) []byte {
	switch level {
	case "full":
		return debug.Stack()
	case "simple":
		var b strings.Builder
		b.WriteString("goroutine panic:\n")
		for i := 3; ; i++ { // 跳过 runtime 和 recover 相关的帧
			pc, file, line, ok := runtime.Caller(i)
			if !ok {
				break
			}
			if strings.Contains(file, "/runtime/") {
				continue
			}
			fn := runtime.FuncForPC(pc)
			if fn == nil {
				continue
			}
			fmt.Fprintf(&b, "  %s:%d\n    %s\n", file, line, fn.Name())
		}
		return []byte(b.String())
	default:
		return nil
	}
}

func logPanic(ctx context.Context, c *app.RequestContext, err interface{}, stack []byte, cfg RecoverConfig) {
	fields := []zap.Field{
		zap.String("panic", fmt.Sprintf("%v", err)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
	}

	requestID := string(c.GetHeader("X-Request-ID"))
	if requestID == "" {
		requestID = string(c.GetHeader("X-Trace-ID"))
	}
	fields = append(fields, zap.String("request_id", requestID))

	if userID, ok := GetUserID(ctx, c); ok {
		fields = append(fields, zap.Int64("user_id", userID))
	}

	if cfg.LogRequestDetails {
		fields = append(fields, zap.String("user_agent", string(c.UserAgent())))

		// 照片上传的请求体不记录
		body := c.Request.Body()
		contentType := string(c.ContentType())
		if len(body) > 0 && len(body) < 1024 && strings.Contains(contentType, "json") {
			fields = append(fields, zap.String("body", string(body)))
		}
	}

	if len(stack) > 0 {
		fields = append(fields, zap.ByteString("stack", stack))
	}

	logger.Logger.Error("[PANIC RECOVERED]", fields...)
}
