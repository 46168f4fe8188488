package logger

import (
	"io"
	"os"
	"strings"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzap "github.com/hertz-contrib/logger/zap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"FamilyWell/config"
)

var (
	// Logger 在 Init 之前为 Nop，测试中无需初始化
	Logger = zap.NewNop()
	output io.Closer
)

// Init 初始化进程日志，component 区分 server / worker / scheduler
func Init(component string) {
	level := zap.NewAtomicLevelAt(ParseLevel(config.Cfg.LoggerLevel))

	hzLogger := hertzzap.NewLogger(
		hertzzap.WithCoreEnc(newEncoder(config.Cfg.IsDevelopment(), config.Cfg.LoggerFormat)),
		hertzzap.WithCoreWs(openOutput(config.Cfg.LoggerOutputPath)),
		hertzzap.WithCoreLevel(level),
		hertzzap.WithZapOptions(
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
			zap.Fields(
				zap.String("service", config.Cfg.ServiceName),
				zap.String("component", component),
				zap.String("env", config.Cfg.Environment),
			),
		),
	)
	hlog.SetLogger(hzLogger)
	hlog.SetLevel(HlogLevel(level.Level()))

	Logger = hzLogger.Logger()
	Logger.Info("Logger initialized",
		zap.Stringer("level", level.Level()),
		zap.String("format", config.Cfg.LoggerFormat),
		zap.String("output", config.Cfg.LoggerOutputPath),
	)
}

// Named 巡检、消费者等子模块的日志
func Named(name string) *zap.Logger {
	return Logger.Named(name)
}

func Sync() {
	_ = Logger.Sync()
	if output != nil {
		_ = output.Close()
	}
}

func newEncoder(development bool, format string) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder

	if development || strings.EqualFold(format, "text") {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func openOutput(path string) zapcore.WriteSyncer {
	if path == "" || strings.EqualFold(path, "stdout") {
		return zapcore.AddSync(os.Stdout)
	}
	if strings.EqualFold(path, "stderr") {
		return zapcore.AddSync(os.Stderr)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		panic("failed to open log file: " + err.Error())
	}
	output = file
	return zapcore.AddSync(file)
}

// ParseLevel 无法识别的级别按 info 处理
func ParseLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func HlogLevel(level zapcore.Level) hlog.Level {
	switch {
	case level <= zapcore.DebugLevel:
		return hlog.LevelDebug
	case level == zapcore.InfoLevel:
		return hlog.LevelInfo
	case level == zapcore.WarnLevel:
		return hlog.LevelWarn
	default:
		return hlog.LevelError
	}
}
