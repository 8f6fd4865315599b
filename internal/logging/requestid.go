// Package logging carries the request id through contexts and builds the zap logger.
package logging

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// RequestIDHeader is read from callers and echoed on every response.
const RequestIDHeader = "X-Request-ID"

type contextKey string

const requestIDKey contextKey = "requestId"

// GenerateRequestID creates a "req_"-prefixed uuid.
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// RequestIDFrom returns the caller's id when it is usable, otherwise a fresh one.
func RequestIDFrom(header string) string {
	id := strings.TrimSpace(header)
	if id == "" || len(id) > 128 {
		return GenerateRequestID()
	}
	return id
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
