package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the formula-specific metric instruments.
type Metrics struct {
	pipelineDuration metric.Float64Histogram
	formulaCount     metric.Int64Counter
	issueCount       metric.Int64Histogram
	aggCount         metric.Int64Histogram
	cacheHits        metric.Int64Counter
	errorCount       metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	// Note: errors from meter instrument creation are unlikely in practice
	// and would only occur with invalid parameters. We use explicit checks
	// to satisfy the linter while continuing with partial metrics on error.
	var err error

	m.pipelineDuration, err = meter.Float64Histogram(
		"formula.pipeline.duration",
		metric.WithDescription("Duration of formula pipeline stages in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.pipelineDuration, _ = meter.Float64Histogram("formula.pipeline.duration")
	}

	m.formulaCount, err = meter.Int64Counter(
		"formula.count",
		metric.WithDescription("Total number of formulas processed"),
		metric.WithUnit("{formula}"),
	)
	if err != nil {
		m.formulaCount, _ = meter.Int64Counter("formula.count")
	}

	m.issueCount, err = meter.Int64Histogram(
		"formula.issue.count",
		metric.WithDescription("Number of issues reported per validation run"),
		metric.WithUnit("{issue}"),
	)
	if err != nil {
		m.issueCount, _ = meter.Int64Histogram("formula.issue.count")
	}

	m.aggCount, err = meter.Int64Histogram(
		"formula.agg.count",
		metric.WithDescription("Number of aggregations per compiled formula"),
		metric.WithUnit("{aggregation}"),
	)
	if err != nil {
		m.aggCount, _ = meter.Int64Histogram("formula.agg.count")
	}

	m.cacheHits, err = meter.Int64Counter(
		"formula.parse.cache",
		metric.WithDescription("Parse cache lookups, partitioned by hit or miss"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		m.cacheHits, _ = meter.Int64Counter("formula.parse.cache")
	}

	m.errorCount, err = meter.Int64Counter(
		"formula.error.count",
		metric.WithDescription("Total number of formula processing errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.errorCount, _ = meter.Int64Counter("formula.error.count")
	}

	return m
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, operation string, duration time.Duration) {
	attrs := metric.WithAttributes(OperationAttr(operation))
	m.pipelineDuration.Record(ctx, float64(duration.Microseconds())/1000.0, attrs)
	m.formulaCount.Add(ctx, 1, attrs)
}

// RecordValidation records the outcome of a validation run.
func (m *Metrics) RecordValidation(ctx context.Context, valid bool, issues int) {
	attrs := metric.WithAttributes(ValidAttr(valid))
	m.issueCount.Record(ctx, int64(issues), attrs)
}

// RecordCompilation records the size of a compiled query.
func (m *Metrics) RecordCompilation(ctx context.Context, aggs int) {
	m.aggCount.Record(ctx, int64(aggs))
}

// RecordCacheLookup records a parse cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(CacheHitAttr(hit)))
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError(ctx context.Context, operation, errorType string) {
	attrs := metric.WithAttributes(
		OperationAttr(operation),
		attribute.String("error.type", errorType),
	)
	m.errorCount.Add(ctx, 1, attrs)
}
