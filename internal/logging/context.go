package logging

import (
	"context"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		fields = append(fields, zap.String("mcp.session_id", sessionID))
	}
	if tool := ToolFromContext(ctx); tool != "" {
		fields = append(fields, zap.String("mcp.tool", tool))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type sessionCtxKey struct{}
type requestCtxKey struct{}
type toolCtxKey struct{}
type loggerCtxKey struct{}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

func validID(id string) bool {
	return id != "" && len(id) <= maxIDLen && utf8.ValidString(id) && idPattern.MatchString(id)
}

// WithSessionID adds the MCP session ID to context.
// Session IDs come from clients, so malformed values are dropped rather
// than logged.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if !validID(sessionID) {
		return ctx
	}
	return context.WithValue(ctx, sessionCtxKey{}, sessionID)
}

// SessionIDFromContext extracts the MCP session ID from context.
func SessionIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(sessionCtxKey{}).(string)
	return s
}

// WithRequestID adds a request ID to context. Malformed IDs are dropped.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if !validID(requestID) {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	r, _ := ctx.Value(requestCtxKey{}).(string)
	return r
}

// WithTool records the MCP tool being served.
func WithTool(ctx context.Context, tool string) context.Context {
	if tool == "" {
		return ctx
	}
	return context.WithValue(ctx, toolCtxKey{}, tool)
}

// ToolFromContext returns the MCP tool being served, if any.
func ToolFromContext(ctx context.Context) string {
	t, _ := ctx.Value(toolCtxKey{}).(string)
	return t
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger from context, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
