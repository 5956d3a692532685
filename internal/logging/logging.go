// Package logging wraps the process-wide zap logger. Every component logs
// through here with structured fields rather than through fmt/log.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the global logger instance. Init must be called once at startup;
// until then calls are silently dropped so packages can log during tests
// without wiring a logger.
var L *zap.Logger

// Init builds the global logger. debug=true yields a development config
// (console encoding, debug level); otherwise a production JSON config at
// info level is used.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	L = logger
	return nil
}

func Info(msg string, fields ...zap.Field) {
	if L != nil {
		L.Info(msg, fields...)
	}
}

func Debug(msg string, fields ...zap.Field) {
	if L != nil {
		L.Debug(msg, fields...)
	}
}

func Warn(msg string, fields ...zap.Field) {
	if L != nil {
		L.Warn(msg, fields...)
	}
}

func Error(msg string, fields ...zap.Field) {
	if L != nil {
		L.Error(msg, fields...)
	}
}

// Sync flushes any buffered log entries; call once at shutdown.
func Sync() {
	if L != nil {
		_ = L.Sync()
	}
}

// Field builds a zap field from a loosely-typed value, mirroring the
// teacher's NewField helper so call sites read the same way.
func Field(key string, value interface{}) zap.Field {
	switch v := value.(type) {
	case string:
		return zap.String(key, v)
	case int:
		return zap.Int(key, v)
	case int32:
		return zap.Int32(key, v)
	case int64:
		return zap.Int64(key, v)
	case bool:
		return zap.Bool(key, v)
	case error:
		return zap.Error(v)
	case zapcore.Field:
		return v
	default:
		return zap.Any(key, value)
	}
}
