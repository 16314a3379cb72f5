package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatFieldsSortsKeys(t *testing.T) {
	out := formatFields(map[string]interface{}{"b": 2, "a": 1, "c": "x"})
	assert.Equal(t, " a=1 b=2 c=x", out)
	assert.Equal(t, "", formatFields(nil))
}

func TestStandardLoggerLevels(t *testing.T) {
	l := NewStandardLogger("test").(*StandardLogger)
	assert.False(t, l.levelEnabled(LogLevelDebug))
	assert.True(t, l.levelEnabled(LogLevelInfo))

	debug := l.WithLevel(LogLevelDebug)
	assert.True(t, debug.levelEnabled(LogLevelDebug))
}

func TestWithMergesFields(t *testing.T) {
	base := NewStandardLogger("test").(*StandardLogger)
	child := base.With(map[string]interface{}{"a": 1}).(*StandardLogger)
	grandchild := child.With(map[string]interface{}{"b": 2}).(*StandardLogger)

	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, grandchild.fields)
	// The parent is untouched.
	assert.Equal(t, map[string]interface{}{"a": 1}, child.fields)
}

func TestNoopImplementations(t *testing.T) {
	logger := NewNoopLogger()
	logger.Info("ignored", map[string]interface{}{"k": "v"})
	assert.NotNil(t, logger.WithPrefix("x"))
	assert.NotNil(t, logger.With(nil))

	metrics := NewNoopMetricsClient()
	metrics.RecordCounter("c", 1, nil)
	metrics.RecordGauge("g", 1, nil)
	metrics.IncrementCounter("i", 1)
	timer := metrics.StartTimer("t", nil)
	timer()
	assert.NoError(t, metrics.Close())

	ctx, span := NoopStartSpan(context.Background(), "op")
	assert.NotNil(t, ctx)
	span.SetAttribute("k", "v")
	span.RecordError(nil)
	span.End()
}
