package log

import (
	"context"
	"os"

	"go.uber.org/zap"
)

type ctxkey string

const (
	loggerContextKey ctxkey = "logger"
)

// Nodes run with human-readable output by default. LOG_FORMAT=json
// switches to the production encoder for fleet deployments.
func createGlobalLogger() (*zap.Logger, error) {
	if os.Getenv("LOG_FORMAT") == "json" {
		return zap.NewProduction(zap.AddCallerSkip(1))
	}
	return zap.NewDevelopment(zap.AddCallerSkip(1))
}

// DefaultGlobals replaces global zap logger with custom default configuration.
func DefaultGlobals() func() {
	return zap.ReplaceGlobals(zap.Must(createGlobalLogger()))
}

// FromContext returns logger from context if set. Otherwise returns global logger.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return zap.L()
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok {
		return logger
	}
	return zap.L()
}

// With appends fields to the logger in context. Rules use it to stamp
// every line below with the run ID they are working on.
func With(ctx context.Context, args ...zap.Field) context.Context {
	logger := FromContext(ctx).With(args...)
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Into adds a named sub-logger to context.
func Into(ctx context.Context, name string) context.Context {
	logger := FromContext(ctx).Named(name)
	return context.WithValue(ctx, loggerContextKey, logger)
}

func Debug(ctx context.Context, msg string, args ...zap.Field) {
	FromContext(ctx).Debug(msg, args...)
}

func Info(ctx context.Context, msg string, args ...zap.Field) {
	FromContext(ctx).Info(msg, args...)
}

func Warn(ctx context.Context, msg string, args ...zap.Field) {
	FromContext(ctx).Warn(msg, args...)
}

func Error(ctx context.Context, msg string, args ...zap.Field) {
	FromContext(ctx).Error(msg, args...)
}

func Fatal(ctx context.Context, msg string, args ...zap.Field) {
	FromContext(ctx).Fatal(msg, args...)
}
