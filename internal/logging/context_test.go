package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextFields(ctx))

	ctx = WithSessionID(ctx, "S3SSION-abc_1")
	ctx = WithRequestID(ctx, "6f1c2d4e-0000-4000-8000-000000000001")
	ctx = WithTool(ctx, "ckm_archetype_search")

	keys := map[string]string{}
	for _, f := range ContextFields(ctx) {
		keys[f.Key] = f.String
	}
	assert.Equal(t, "S3SSION-abc_1", keys["mcp.session_id"])
	assert.Equal(t, "6f1c2d4e-0000-4000-8000-000000000001", keys["request.id"])
	assert.Equal(t, "ckm_archetype_search", keys["mcp.tool"])
}

func TestContextFields_TraceCorrelation(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	tl := NewTestLogger()
	tl.Info(ctx, "traced")
	tl.AssertField(t, "traced", "trace_id", "0102030405060708090a0b0c0d0e0f10")
	tl.AssertField(t, "traced", "span_id", "0102030405060708")
}

func TestWithSessionID_DropsMalformed(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", SessionIDFromContext(WithSessionID(ctx, "")))
	assert.Equal(t, "", SessionIDFromContext(WithSessionID(ctx, "bad id\n")))
	assert.Equal(t, "", RequestIDFromContext(WithRequestID(ctx, string(make([]byte, maxIDLen+1)))))
}

func TestFromContext(t *testing.T) {
	nop := FromContext(context.Background())
	assert.NotNil(t, nop)
	assert.False(t, nop.Enabled(zapcore.ErrorLevel))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "from context")
	tl.AssertLogged(t, zapcore.WarnLevel, "from context")
}
