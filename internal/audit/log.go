// Package audit emits append-only JSON events for the actions that
// matter after the fact: registrations, logins, resets, resource
// mutations. Events go to the shared structured log; they are not a
// durability mechanism.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"contentd.org/internal/auth"
	"contentd.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and subject context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}

	attrs := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, zap.String("request_id", rid))
	}
	if uid, ok := auth.SubjectFromContext(ctx); ok {
		attrs = append(attrs, zap.String("user_id", uid))
	}
	if len(fields) > 0 {
		attrs = append(attrs, zap.Any("fields", fields))
	}

	obs.Logger().Info(event, attrs...)
	return nil
}
