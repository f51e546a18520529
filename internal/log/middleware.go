package log

import (
	"context"
	"log/slog"
	"net/http"
)

type ContextKey string

const LoggerContextKey ContextKey = "logger"

func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext returns the request logger, or one over slog.Default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: ComponentApp}
}

// StructuredLogger emits the records the HTTP layer and the core agree on.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogHTTPEnd logs a finished request at a level derived from its status.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(statusCode, durationMs).
		WithClientIP(clientIP)

	sl.logger.log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogTransactionCreated(ctx context.Context, userID, category, kind, amount string) {
	fields := NewFields().
		WithUser(userID).
		WithTransaction(category, kind, amount).
		WithOperation(OpCreateTransaction)

	sl.logger.InfoContext(ctx, "Transaction created", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogPlanReconciled(ctx context.Context, userID, paymentID, status, plan, operation string) {
	fields := NewFields().
		WithUser(userID).
		WithPayment(paymentID, status, plan).
		WithOperation(operation)

	sl.logger.InfoContext(ctx, "Plan reconciled", fields.ToSlice()...)
}

// LogError logs err with its classification and the operation that failed.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, errorType, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	all := fields.
		WithError(err).
		WithErrorType(errorType).
		WithOperation(operation)

	level := slog.LevelError
	if errorType == ErrorTypeValidation || errorType == ErrorTypeForbidden || errorType == ErrorTypeNotFound || errorType == ErrorTypeAuth {
		level = slog.LevelWarn
	}
	sl.logger.log(ctx, level, msg, all.ToSlice()...)
}
