package logger

import (
	"context"

	"go.uber.org/zap"
)

// contextKey is a type for context keys used by the logger package
type contextKey string

const (
	// LoggerKey is the context key for the logger
	LoggerKey contextKey = "logger"
	// RunIDKey is the context key for the processing-run identifier
	RunIDKey contextKey = "run_id"
	// OrderNumKey is the context key for the order being processed
	OrderNumKey contextKey = "order_num"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context, returns a no-op logger if
// not found
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRunID adds the run ID to context and returns an enriched logger
func WithRunID(ctx context.Context, logger *zap.Logger, runID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, RunIDKey, runID)
	enrichedLogger := logger.With(zap.String("run_id", runID))
	return WithContext(ctx, enrichedLogger), enrichedLogger
}

// WithOrderNum adds the order number to context and returns an enriched logger
func WithOrderNum(ctx context.Context, logger *zap.Logger, orderNum int) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, OrderNumKey, orderNum)
	enrichedLogger := logger.With(zap.Int("order_num", orderNum))
	return WithContext(ctx, enrichedLogger), enrichedLogger
}

// GetRunID retrieves the run ID from context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// GetOrderNum retrieves the order number from context, 0 when absent
func GetOrderNum(ctx context.Context) int {
	if orderNum, ok := ctx.Value(OrderNumKey).(int); ok {
		return orderNum
	}
	return 0
}
