package logger

import (
	"testing"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
}

func TestHlogLevel(t *testing.T) {
	assert.Equal(t, hlog.LevelDebug, HlogLevel(zapcore.DebugLevel))
	assert.Equal(t, hlog.LevelInfo, HlogLevel(zapcore.InfoLevel))
	assert.Equal(t, hlog.LevelWarn, HlogLevel(zapcore.WarnLevel))
	assert.Equal(t, hlog.LevelError, HlogLevel(zapcore.DPanicLevel))
}
