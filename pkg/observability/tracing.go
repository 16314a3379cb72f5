package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// otelSpan adapts an otel span to the Span interface.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) SpanContext() trace.SpanContext {
	return s.span.SpanContext()
}

// NewStartSpanFunc returns a StartSpanFunc backed by the global otel
// tracer provider for the given instrumentation name.
func NewStartSpanFunc(name string) StartSpanFunc {
	tracer := otel.Tracer(name)
	return func(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, Span) {
		ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
		return ctx, &otelSpan{span: span}
	}
}
