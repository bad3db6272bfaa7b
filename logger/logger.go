// Package logger sets up the process wide zap logger.
package logger

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/esimov/pixel-particles/config"
)

var (
	global atomic.Pointer[zap.Logger]
	once   sync.Once
)

// Initialize builds the global logger. Console output goes to console; pass
// zapcore.AddSync(io.Discard) when the terminal is owned by a renderer. When
// cfg.File is set a rotated JSON log is written as well. Only the first call
// has an effect.
func Initialize(cfg config.LoggerConfig, console zapcore.WriteSyncer) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		cores := []zapcore.Core{zapcore.NewCore(encoder(cfg.Format), console, level)}
		if cfg.File != "" {
			file := zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
			cores = append(cores, zapcore.NewCore(encoder("json"), file, level))
		}

		l := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel))
		if cfg.ServiceName != "" {
			l = l.Named(cfg.ServiceName)
		}
		global.Store(l)
		zap.ReplaceGlobals(l)
	})
}

// InitializeStdout logs to stdout, or only to the log file when quiet is set.
func InitializeStdout(cfg config.LoggerConfig, quiet bool) {
	var console zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	if quiet {
		console = zapcore.AddSync(io.Discard)
	}
	Initialize(cfg, console)
}

// L returns the global logger, or a no-op logger before Initialize.
func L() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// Sync flushes buffered entries.
func Sync() {
	_ = L().Sync()
}

// ResetForTest clears the global logger so that Initialize runs again.
func ResetForTest() {
	global.Store(nil)
	once = sync.Once{}
}

func encoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "json" {
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(ec)
}
