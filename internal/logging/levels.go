package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug and is used for wire-level details such as
// raw CKM payloads. Almost always filtered out.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses a level name. Besides the zap names it accepts
// "trace" and the PSR-3 style names "notice", "critical", "alert" and
// "emergency" that LOG_LEVEL values commonly use.
func LevelFromString(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return TraceLevel, nil
	case "notice":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	case "critical", "alert":
		return zapcore.DPanicLevel, nil
	case "emergency":
		return zapcore.FatalLevel, nil
	}

	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}
