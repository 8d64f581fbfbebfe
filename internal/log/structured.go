package log

import (
	"context"
	"log/slog"
	"net/http"
)

// ContextKey type for context keys
type ContextKey string

// LoggerContextKey carries the request-scoped logger set by the trace middleware.
const LoggerContextKey ContextKey = "logger"

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	// Return default logger if not found
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogHTTPStart logs the start of an HTTP request
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.InfoContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs the completion of an HTTP request
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogTransactionDecided logs the outcome of an authorization decision
func (sl *StructuredLogger) LogTransactionDecided(ctx context.Context, op, id, subAccountID, txType, status, reason string, amountCents int64) {
	fields := NewFields().
		WithTransaction(id, subAccountID, txType, status, amountCents).
		WithReason(reason).
		WithOperation(op)

	sl.logger.InfoContext(ctx, "Transaction decided", fields.ToSlice()...)
}

// LogBalanceAdjusted logs a manual balance change on a sub-account
func (sl *StructuredLogger) LogBalanceAdjusted(ctx context.Context, subAccountID, memberID string, deltaCents, balanceCents int64) {
	fields := NewFields().
		WithAccount(subAccountID, memberID, balanceCents).
		WithOperation(OpAdjust)
	fields[FieldDeltaCents] = deltaCents

	sl.logger.InfoContext(ctx, "Balance adjusted", fields.ToSlice()...)
}
