// Package observability provides OpenTelemetry-based instrumentation
// for the formula engine.
//
// It supports distributed tracing, metrics collection, and enhanced
// structured logging.
//
// All observability features are opt-in. When not configured, no-op
// implementations are used with zero performance overhead.
package observability

import "go.opentelemetry.io/otel/attribute"

// Instrumentation identity constants
const (
	// TracerName is the instrumentation name for tracing.
	TracerName = "github.com/vbeck/go-formula"
	// MeterName is the instrumentation name for metrics.
	MeterName = "github.com/vbeck/go-formula"
)

// Formula semantic attribute keys following OpenTelemetry conventions.
const (
	// Pipeline attributes
	AttrOperation    = "formula.operation"
	AttrSourceLength = "formula.source_length"
	AttrCacheHit     = "formula.cache_hit"

	// Validation attributes
	AttrValid      = "formula.valid"
	AttrIssueCount = "formula.issue_count"

	// Compilation attributes
	AttrAggCount   = "formula.agg_count"
	AttrShiftCount = "formula.shift_count"

	// Async attributes
	AttrAsyncJobID     = "formula.async.job_id"
	AttrAsyncJobStatus = "formula.async.job_status"

	// Error attributes
	AttrErrorCode    = "formula.error.code"
	AttrErrorMessage = "formula.error.message"
)

// Operation types for the formula.operation attribute.
const (
	OpParse    = "parse"
	OpValidate = "validate"
	OpCompile  = "compile"
	OpProcess  = "process"
)

// Log field keys for structured logging with trace context.
const (
	LogFieldOperation  = "formula.operation"
	LogFieldSourceLen  = "formula.source_length"
	LogFieldIssueCount = "formula.issue_count"
	LogFieldTraceID    = "trace_id"
	LogFieldSpanID     = "span_id"
	LogFieldDuration   = "duration_ms"
	LogFieldError      = "error"
)

// OperationAttr creates an attribute for the pipeline operation.
func OperationAttr(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// SourceLengthAttr creates an attribute for the formula source length.
func SourceLengthAttr(length int) attribute.KeyValue {
	return attribute.Int(AttrSourceLength, length)
}

// CacheHitAttr creates an attribute recording a parse-cache hit or miss.
func CacheHitAttr(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// ValidAttr creates an attribute for the validation outcome.
func ValidAttr(valid bool) attribute.KeyValue {
	return attribute.Bool(AttrValid, valid)
}

// IssueCountAttr creates an attribute for the number of validation issues.
func IssueCountAttr(count int) attribute.KeyValue {
	return attribute.Int(AttrIssueCount, count)
}

// AggCountAttr creates an attribute for the number of compiled aggregations.
func AggCountAttr(count int) attribute.KeyValue {
	return attribute.Int(AttrAggCount, count)
}

// AsyncJobIDAttr creates an attribute for the async job ID.
func AsyncJobIDAttr(jobID string) attribute.KeyValue {
	return attribute.String(AttrAsyncJobID, jobID)
}

// ErrorCodeAttr creates an attribute for the error code.
func ErrorCodeAttr(code string) attribute.KeyValue {
	return attribute.String(AttrErrorCode, code)
}
