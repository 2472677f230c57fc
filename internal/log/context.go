// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	requestIDKey       ctxKey = "request_id"
	correlationIDKey   ctxKey = "correlation_id"
	clientRequestIDKey ctxKey = "client_request_id"
	robotIDKey         ctxKey = "robot_id"
	sessionIDKey       ctxKey = "session_id"
)

// ContextWithRequestID stores the provided request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithCorrelationID stores the provided correlation ID in the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithClientRequestID stores the caller-supplied request ID (e.g. an
// inbound X-Request-ID header) distinct from our own generated request ID.
func ContextWithClientRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientRequestIDKey, id)
}

// ContextWithRobotID stores the robot a patrol-related log line concerns.
// Set once, at the top of PatrolExecutor.Run, so every log line the
// executor emits for a session carries it without repeating
// .Int64("robot_id", ...) at every call site.
func ContextWithRobotID(ctx context.Context, robotID int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, robotIDKey, robotID)
}

// ContextWithSessionID stores the PatrolSession a log line concerns,
// alongside ContextWithRobotID.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// RequestIDFromContext extracts the request ID from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// CorrelationIDFromContext extracts the correlation ID from context if present.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// ClientRequestIDFromContext extracts the caller-supplied request ID from
// context if present.
func ClientRequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(clientRequestIDKey).(string); ok {
		return v
	}
	return ""
}

// RobotIDFromContext extracts the robot ID set by ContextWithRobotID. Zero
// means none was set, matching the rest of this repository's convention
// that robot/session identifiers are never zero-valued once assigned.
func RobotIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if v, ok := ctx.Value(robotIDKey).(int64); ok {
		return v
	}
	return 0
}

// SessionIDFromContext extracts the session ID set by ContextWithSessionID.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithContext enriches the supplied logger with correlation fields from context.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if rid := RequestIDFromContext(ctx); rid != "" {
		builder = builder.Str(FieldRequestID, rid)
		added = true
	}
	if cid := CorrelationIDFromContext(ctx); cid != "" {
		builder = builder.Str(FieldCorrelationID, cid)
		added = true
	}
	if crid := ClientRequestIDFromContext(ctx); crid != "" {
		builder = builder.Str(FieldClientRequestID, crid)
		added = true
	}
	if robotID := RobotIDFromContext(ctx); robotID != 0 {
		builder = builder.Int64(FieldRobotID, robotID)
		added = true
	}
	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		builder = builder.Str(FieldSessionID, sessionID)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext returns a logger that is annotated with the component
// name and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	l := FromContext(ctx)
	return l.With().Str("component", component).Logger()
}

// FromContext returns a logger from the context, or a new one if not present.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		l := Base()
		return &l
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		// If no logger is in the context, return the base logger.
		b := Base()
		return &b
	}
	return l
}
