package observability

import (
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// NewNoopTracer creates a tracer that does nothing.
func NewNoopTracer() *Tracer {
	return &Tracer{
		tracer:      tracenoop.NewTracerProvider().Tracer(""),
		serviceName: "",
	}
}

// NewNoopMetrics creates metrics that do nothing.
func NewNoopMetrics() *Metrics {
	meter := noop.NewMeterProvider().Meter("")
	m := &Metrics{}

	// Note: noop meter never returns errors, but we must check them to satisfy the linter.
	m.pipelineDuration, _ = meter.Float64Histogram("formula.pipeline.duration") //nolint:errcheck
	m.formulaCount, _ = meter.Int64Counter("formula.count")                     //nolint:errcheck
	m.issueCount, _ = meter.Int64Histogram("formula.issue.count")               //nolint:errcheck
	m.aggCount, _ = meter.Int64Histogram("formula.agg.count")                   //nolint:errcheck
	m.cacheHits, _ = meter.Int64Counter("formula.parse.cache")                  //nolint:errcheck
	m.errorCount, _ = meter.Int64Counter("formula.error.count")                 //nolint:errcheck

	return m
}
