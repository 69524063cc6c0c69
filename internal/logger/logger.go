package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 全局日志实例。Initialize 之前为 no-op，测试中可直接使用。
var Log = zap.NewNop()

// Initialize sets up console + rotated JSON file output.
func Initialize(level, file string, production bool) error {
	if file == "" {
		file = "server.log"
	}

	lvl := parseLevel(level)

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    100, // MB
		MaxBackups: 5,
		MaxAge:     7,
		Compress:   true,
	})

	jsonCfg := zap.NewProductionEncoderConfig()
	jsonCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	if production {
		consoleEncoder = zapcore.NewJSONEncoder(jsonCfg)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), lvl),
		zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), fileWriter, lvl),
	)

	Log = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	Log.Info("Logger initialized", zap.String("level", lvl.String()), zap.String("file", file))
	return nil
}

// Close flushes buffered entries.
func Close() error {
	return Log.Sync()
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func WithRequestID(id string) zap.Field {
	return zap.String("request_id", id)
}

func WithUserID(id uint) zap.Field {
	return zap.Uint("user_id", id)
}

func WithPostID(id uint) zap.Field {
	return zap.Uint("post_id", id)
}
