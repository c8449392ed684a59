package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with formula-specific span
// creation methods.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// NewTracer creates a new Tracer using the given TracerProvider.
func NewTracer(tp trace.TracerProvider, serviceName string) *Tracer {
	return &Tracer{
		tracer:      tp.Tracer(TracerName),
		serviceName: serviceName,
	}
}

// StartSpan starts a new span with the given name and attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, span
}

// StartParse starts a span for tokenizing and parsing a formula.
func (t *Tracer) StartParse(ctx context.Context, sourceLength int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "formula.parse", trace.WithAttributes(
		OperationAttr(OpParse),
		SourceLengthAttr(sourceLength),
	))
}

// StartValidate starts a span for running the validation passes.
func (t *Tracer) StartValidate(ctx context.Context, sourceLength int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "formula.validate", trace.WithAttributes(
		OperationAttr(OpValidate),
		SourceLengthAttr(sourceLength),
	))
}

// StartCompile starts a span for lowering a formula into a query.
func (t *Tracer) StartCompile(ctx context.Context, sourceLength int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "formula.compile", trace.WithAttributes(
		OperationAttr(OpCompile),
		SourceLengthAttr(sourceLength),
	))
}

// StartProcess starts a span covering the whole parse/validate/compile
// pipeline.
func (t *Tracer) StartProcess(ctx context.Context, sourceLength int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "formula.process", trace.WithAttributes(
		OperationAttr(OpProcess),
		SourceLengthAttr(sourceLength),
	))
}

// RecordError records an error on the span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// LoggerWithTrace returns a logger enriched with trace context.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return logger
	}
	return logger.With(
		slog.String(LogFieldTraceID, span.SpanContext().TraceID().String()),
		slog.String(LogFieldSpanID, span.SpanContext().SpanID().String()),
	)
}
