package logging

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

type contextKey string

// Context keys whose values are stamped onto every log line. Rooms and
// connections put these on the contexts they pass down.
const (
	CorrelationIDKey contextKey = "correlation_id"
	ConnIDKey        contextKey = "conn_id"
	RoomIDKey        contextKey = "room_id"
	ModeKey          contextKey = "mode"
)

// contextFieldKeys is the extraction order for appendContextFields.
var contextFieldKeys = []contextKey{CorrelationIDKey, ConnIDKey, RoomIDKey, ModeKey}

// Initialize sets up the global logger based on the environment
func Initialize(development bool) error {
	var err error
	once.Do(func() {
		var config zap.Config
		if development {
			config = zap.NewDevelopmentConfig()
			config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			config = zap.NewProductionConfig()
			config.EncoderConfig.TimeKey = "timestamp"
			config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}

		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}

		logger, err = config.Build(zap.AddCallerSkip(1))
	})
	return err
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Fallback specific for tests or before init
		l, _ := zap.NewDevelopment()
		return l
	}
	return logger
}

// Debug logs a message at DebugLevel
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, appendContextFields(ctx, fields)...)
}

// Info logs a message at InfoLevel
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Info(msg, appendContextFields(ctx, fields)...)
}

// Warn logs a message at WarnLevel
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, appendContextFields(ctx, fields)...)
}

// Error logs a message at ErrorLevel
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Error(msg, appendContextFields(ctx, fields)...)
}

// Fatal logs a message at FatalLevel
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, appendContextFields(ctx, fields)...)
}

// appendContextFields lifts the known context values into log fields.
func appendContextFields(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx != nil {
		for _, key := range contextFieldKeys {
			if v, ok := ctx.Value(key).(string); ok && v != "" {
				fields = append(fields, zap.String(string(key), v))
			}
		}
	}
	return append(fields, zap.String("service", "game-server"))
}

// RedactEmail masks the local part of an email address before it is
// logged. Anything without an @ is masked entirely.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return "***" + email[at:]
	}
	return "***"
}
