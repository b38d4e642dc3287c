package logging

import (
	"context"
	"testing"
	"time"

	"github.com/cadasto/openehr-assistant-mcp/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSampledCore_NeverSamplesErrors(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	sampled := newSampledCore(core, SamplingConfig{
		Enabled:    true,
		Tick:       config.Duration(time.Minute),
		Initial:    2,
		Thereafter: 0,
	})
	logger := &Logger{zap: zap.New(sampled), config: NewDefaultConfig()}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		logger.Info(ctx, "repeated")
		logger.Error(ctx, "failure")
	}

	assert.Equal(t, 2, observed.FilterMessage("repeated").Len())
	assert.Equal(t, 10, observed.FilterMessage("failure").Len())
}

func TestSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	assert.Same(t, core, newSampledCore(core, SamplingConfig{Enabled: false}))
}
