package logging

import (
	"context"
	"log/slog"

	"nftpin/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldTokenPath is the dotted preference path of the token being reconciled.
	FieldTokenPath = "token_path"
	// FieldOperation is the reconciliation operation (add, delete, validate).
	FieldOperation = "operation"
	// FieldAttempt is the retry attempt counter of an intent.
	FieldAttempt = "attempt"
	// FieldService is the pinning service name ("local" for the Kubo node).
	FieldService = "service"
	// FieldEventType classifies a record for dashboards and alerting.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if path, ok := services.TokenPathFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTokenPath, path))
	}
	if op, ok := services.OperationFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldOperation, op))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
