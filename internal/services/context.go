package services

import "context"

type contextKey string

const (
	tokenPathKey contextKey = "token_path"
	operationKey contextKey = "operation"
	requestIDKey contextKey = "request_id"
)

// WithTokenPath annotates context with the dotted token path being reconciled.
func WithTokenPath(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenPathKey, path)
}

// TokenPathFromContext returns the token path if present.
func TokenPathFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(tokenPathKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithOperation annotates context with the reconciliation operation (add, delete, validate).
func WithOperation(ctx context.Context, operation string) context.Context {
	if operation == "" {
		return ctx
	}
	return context.WithValue(ctx, operationKey, operation)
}

// OperationFromContext returns the operation name if present.
func OperationFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(operationKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
