package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// noopLogger discards all log output.
type noopLogger struct{}

// NewNoopLogger creates a logger that does nothing. It is the fallback
// for components constructed without a logger and the default in tests.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

func (n *noopLogger) Debug(msg string, fields map[string]interface{}) {}
func (n *noopLogger) Info(msg string, fields map[string]interface{})  {}
func (n *noopLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *noopLogger) Error(msg string, fields map[string]interface{}) {}
func (n *noopLogger) Debugf(format string, args ...interface{})       {}
func (n *noopLogger) Infof(format string, args ...interface{})        {}
func (n *noopLogger) Warnf(format string, args ...interface{})        {}
func (n *noopLogger) Errorf(format string, args ...interface{})       {}
func (n *noopLogger) WithPrefix(prefix string) Logger                 { return n }
func (n *noopLogger) With(fields map[string]interface{}) Logger       { return n }

// noopMetricsClient discards all metrics.
type noopMetricsClient struct{}

// NewNoopMetricsClient creates a metrics client that does nothing.
func NewNoopMetricsClient() MetricsClient {
	return &noopMetricsClient{}
}

func (n *noopMetricsClient) RecordCounter(name string, value float64, labels map[string]string) {}
func (n *noopMetricsClient) RecordGauge(name string, value float64, labels map[string]string)  {}
func (n *noopMetricsClient) RecordTimer(name string, duration time.Duration, labels map[string]string) {
}
func (n *noopMetricsClient) RecordOperation(component string, operation string, success bool, durationSeconds float64, labels map[string]string) {
}
func (n *noopMetricsClient) IncrementCounter(name string, value float64) {}
func (n *noopMetricsClient) StartTimer(name string, labels map[string]string) func() {
	return func() {}
}
func (n *noopMetricsClient) Close() error { return nil }

// NoopSpan is a no-op implementation of the Span interface.
type NoopSpan struct{}

func (s *NoopSpan) End()                                       {}
func (s *NoopSpan) SetAttribute(key string, value interface{}) {}
func (s *NoopSpan) RecordError(err error)                      {}
func (s *NoopSpan) SpanContext() trace.SpanContext             { return trace.SpanContext{} }

// NoopStartSpan is a no-op implementation of StartSpanFunc.
func NoopStartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	return ctx, &NoopSpan{}
}
