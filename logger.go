package typedstore

import (
	"context"

	"go.uber.org/zap"
)

// Logger defines an interface for logging operations.
// Implementations should be safe for concurrent use.
type Logger interface {
	// Info logs informational messages
	Info(ctx context.Context, format string, args ...interface{})

	// Warn logs warning messages
	Warn(ctx context.Context, format string, args ...interface{})

	// Error logs error messages
	Error(ctx context.Context, format string, args ...interface{})

	// Debug logs debug messages
	Debug(ctx context.Context, format string, args ...interface{})
}

// noopLogger is a Logger that does nothing.
type noopLogger struct{}

func (noopLogger) Info(ctx context.Context, format string, args ...interface{})  {}
func (noopLogger) Warn(ctx context.Context, format string, args ...interface{})  {}
func (noopLogger) Error(ctx context.Context, format string, args ...interface{}) {}
func (noopLogger) Debug(ctx context.Context, format string, args ...interface{}) {}

var defaultLogger Logger = noopLogger{}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger. A nil logger yields a no-op Logger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		return defaultLogger
	}
	return zapLogger{sugar: l.WithOptions(zap.AddCallerSkip(2)).Sugar()}
}

func (z zapLogger) Info(_ context.Context, format string, args ...interface{}) {
	z.sugar.Infof(format, args...)
}

func (z zapLogger) Warn(_ context.Context, format string, args ...interface{}) {
	z.sugar.Warnf(format, args...)
}

func (z zapLogger) Error(_ context.Context, format string, args ...interface{}) {
	z.sugar.Errorf(format, args...)
}

func (z zapLogger) Debug(_ context.Context, format string, args ...interface{}) {
	z.sugar.Debugf(format, args...)
}
