// Package logger holds the process-wide zap logger.
//
// JSON output for production, colored console output for development.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global *zap.Logger
	once   sync.Once
)

// Init builds the global logger. level is one of debug, info, warn, error;
// format is json or console. Only the first call has an effect.
func Init(level, format string) error {
	var initErr error
	once.Do(func() {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			initErr = fmt.Errorf("parse log level %q: %w", level, err)
			return
		}

		var cfg zap.Config
		switch format {
		case "console":
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		default:
			cfg = zap.NewProductionConfig()
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)

		l, err := cfg.Build()
		if err != nil {
			initErr = fmt.Errorf("build logger: %w", err)
			return
		}
		global = l.Named("storefleet")
	})
	return initErr
}

// L returns the global logger. Panics if Init has not been called.
func L() *zap.Logger {
	if global == nil {
		panic("logger.Init() must be called before logger.L()")
	}
	return global
}

// The package-level helpers add one frame between the caller and zap.
func pkg() *zap.Logger {
	return L().WithOptions(zap.AddCallerSkip(1))
}

// Debug logs at DebugLevel on the global logger.
func Debug(msg string, fields ...zap.Field) { pkg().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { pkg().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { pkg().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { pkg().Error(msg, fields...) }

// ForStore returns a child logger carrying the store identity fields that
// every pipeline log line is expected to have.
func ForStore(storeID, namespace string) *zap.Logger {
	return L().With(
		zap.String("store_id", storeID),
		zap.String("namespace", namespace),
	)
}

// Sync flushes any buffered log entries.
func Sync() error {
	if global == nil {
		return nil
	}
	return global.Sync()
}
