// Package logging provides structured logging for the openEHR assistant.
//
// The logger wraps Zap with:
//   - a custom Trace level (-2, below Debug)
//   - stderr output, so the stdio MCP transport keeps stdout to itself
//   - an optional OpenTelemetry log bridge
//   - automatic context fields (trace_id, mcp session, request id)
//   - field and pattern redaction
//   - level-aware sampling where errors are never sampled
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	cfg.Level = zapcore.DebugLevel
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, session.ID())
//	logger.Info(ctx, "Found CKM Archetypes", zap.String("keyword", kw))
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	svc := ckm.NewService(client, tl.Logger)
//	tl.AssertLogged(t, zapcore.InfoLevel, "Found CKM Archetypes")
package logging
