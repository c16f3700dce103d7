// Package logging carries a zap logger through context. Worker processes and
// the supervisor share one rotating log file, so every component logs through
// the logger found in its context rather than a global.
package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type loggerKey struct{}

func NewContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return New(zap.InfoLevel, "", 0, 0, false)
}

// New builds a logger writing to stdout and, when logFileName is non-empty,
// to a file rotated after maxFileSize MB, keeping maxFiles old files.
// maxFiles 0 disables rotation and appends to a plain file. The file sink
// always logs at debug level; the console respects the given level.
func New(level zapcore.LevelEnabler, logFileName string, maxFileSize, maxFiles int, json bool) *zap.Logger {
	var encoder zapcore.Encoder
	if json {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	if logFileName != "" {
		var sink zapcore.WriteSyncer
		if maxFiles == 0 {
			if f, err := os.OpenFile(logFileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
				sink = zapcore.AddSync(f)
			}
		} else {
			sink = zapcore.AddSync(&lumberjack.Logger{
				Filename:   logFileName,
				MaxSize:    maxFileSize,
				MaxBackups: maxFiles,
				MaxAge:     28,
				Compress:   true,
			})
		}
		if sink != nil {
			cores = append(cores, zapcore.NewCore(encoder, sink, zap.DebugLevel))
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}
