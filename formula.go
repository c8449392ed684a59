// Package formula parses, validates and compiles analytics formula
// expressions such as sum(bytes, kql='status:200') / count() into
// aggregation queries for an Elasticsearch-style document store.
//
// The Engine is the entry point. It runs a fixed pipeline: tokenize
// and parse the source into an AST, validate the AST against the
// function registry and an optional field schema, then lower it into
// an aggregation tree. Each stage can also be run on its own, which
// is what editor integrations do to surface issues while typing.
package formula

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/vbeck/go-formula/internal/compile"
	"github.com/vbeck/go-formula/internal/observability"
	"github.com/vbeck/go-formula/internal/parser"
	"github.com/vbeck/go-formula/internal/schema"
	"github.com/vbeck/go-formula/internal/validate"
)

// Field describes one field of the data view a formula runs against.
type Field struct {
	// Name is the full dotted field path, e.g. "aws.ec2.cpu".
	Name string
	// Type is the field type: "number", "string", "boolean" or "date".
	Type string
}

// SecurityLimits bounds formula size and complexity. Zero values fall
// back to the defaults.
type SecurityLimits struct {
	// MaxLength is the maximum formula source length in characters.
	// Default 10000.
	MaxLength int
	// MaxDepth is the maximum expression nesting depth. Default 20.
	MaxDepth int
	// MaxComplexity is the aggregation count above which a
	// high-complexity warning is reported. Default 30.
	MaxComplexity int
}

// Severity classifies a validation issue.
type Severity int

const (
	// SeverityError marks issues that make the formula invalid.
	SeverityError Severity = iota
	// SeverityWarning marks issues worth fixing that do not block
	// compilation.
	SeverityWarning
	// SeverityInfo marks informational hints.
	SeverityInfo
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	}
	return "info"
}

// Issue is a single validation finding.
type Issue struct {
	Severity Severity
	// Message is the human-readable description.
	Message string
	// NodePath locates the offending node, e.g. "$.args[0].left".
	NodePath string
	// Suggestions lists likely intended alternatives for unknown
	// function or field names, best match first.
	Suggestions []string
}

// ValidationResult is the outcome of validating one formula. Valid is
// true iff no issue has severity error.
type ValidationResult struct {
	Valid  bool
	Issues []Issue
}

// TimeShift marks an aggregation that must run against a shifted time
// range. The query executor is responsible for splitting shifted
// aggregations into separate requests.
type TimeShift struct {
	// Agg is the aggregation name carrying the shift.
	Agg string
	// Shift is the raw shift value, e.g. "1w" or "previous".
	Shift string
}

// CompiledQuery is the aggregation tree a formula lowers into. The
// formula value is produced by the aggregation named "result".
type CompiledQuery struct {
	// Aggs maps sibling aggregation names to their definitions.
	Aggs map[string]any
	// ValuePath selects the formula value in the response, e.g.
	// "result" or "result[50.0]".
	ValuePath string
	// TimeShifts lists aggregations that need time-shifted execution.
	TimeShifts []TimeShift
}

// Body returns the full search request body wrapping the aggregations.
func (q *CompiledQuery) Body() map[string]any {
	return map[string]any{"aggs": q.Aggs}
}

// ParsedFormula is an immutable parsed formula. It is safe to share
// across goroutines and to validate or compile repeatedly.
type ParsedFormula struct {
	source string
	root   parser.Node
}

// Source returns the original formula text.
func (f *ParsedFormula) Source() string {
	return f.source
}

// String returns the canonical rendering of the parsed expression,
// with normalized whitespace and sorted named arguments.
func (f *ParsedFormula) String() string {
	return f.root.String()
}

// Engine is the formula processing pipeline. An Engine is safe for
// concurrent use; construct one per data view or share one and pass
// limits at construction.
type Engine struct {
	schema *schema.Schema
	limits validate.SecurityLimits
	logger *slog.Logger
	obs    *observability.Config
	cache  *parser.Cache
	async  asyncEngine
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	fields       []Field
	limits       SecurityLimits
	logger       *slog.Logger
	cacheSize    int
	jobRetention time.Duration
	obsOpts      []observability.Option
}

// WithSchema sets the data-view fields formulas are checked against.
// Without a schema, field existence and field types are not checked.
func WithSchema(fields []Field) EngineOption {
	return func(c *engineConfig) {
		c.fields = fields
	}
}

// WithSecurityLimits overrides the default size and complexity limits.
func WithSecurityLimits(limits SecurityLimits) EngineOption {
	return func(c *engineConfig) {
		c.limits = limits
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithParseCacheSize sets the parse cache capacity. A non-positive
// size keeps the default.
func WithParseCacheSize(size int) EngineOption {
	return func(c *engineConfig) {
		c.cacheSize = size
	}
}

// WithJobRetention sets how long finished background jobs remain
// available for polling.
func WithJobRetention(d time.Duration) EngineOption {
	return func(c *engineConfig) {
		c.jobRetention = d
	}
}

// WithTracerProvider enables OpenTelemetry tracing of pipeline stages.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(c *engineConfig) {
		c.obsOpts = append(c.obsOpts, observability.WithTracerProvider(tp))
	}
}

// WithMeterProvider enables OpenTelemetry metrics collection.
func WithMeterProvider(mp metric.MeterProvider) EngineOption {
	return func(c *engineConfig) {
		c.obsOpts = append(c.obsOpts, observability.WithMeterProvider(mp))
	}
}

// NewEngine creates an Engine with the given options.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	cfg := engineConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	obs := observability.NewConfig(cfg.obsOpts...)
	if err := obs.Initialize(); err != nil {
		return nil, err
	}

	e := &Engine{
		limits: validate.SecurityLimits{
			MaxLength:     cfg.limits.MaxLength,
			MaxDepth:      cfg.limits.MaxDepth,
			MaxComplexity: cfg.limits.MaxComplexity,
		},
		logger: cfg.logger,
		obs:    obs,
		cache:  parser.NewCache(cfg.cacheSize),
	}

	if cfg.fields != nil {
		fields := make([]schema.Field, len(cfg.fields))
		for i, f := range cfg.fields {
			fields[i] = schema.Field{Name: f.Name, Type: f.Type}
		}
		e.schema = schema.New(fields)
	}

	e.initAsync(cfg.jobRetention)

	return e, nil
}

// Parse tokenizes and parses a formula into an AST. Syntax errors are
// returned as a *SyntaxError collecting every recoverable error with
// its position. Results are cached, so parsing the same source twice
// is cheap.
func (e *Engine) Parse(ctx context.Context, source string) (*ParsedFormula, error) {
	if strings.TrimSpace(source) == "" {
		return nil, ErrEmptyFormula
	}

	ctx, span := e.obs.Tracer().StartParse(ctx, len(source))
	defer span.End()
	start := time.Now()

	result, hit := e.cache.Get(source)
	e.obs.Metrics().RecordCacheLookup(ctx, hit)
	if !hit {
		result = parser.ParseSource(source)
		e.cache.Put(source, result)
	}
	e.obs.Metrics().RecordStage(ctx, observability.OpParse, time.Since(start))

	if len(result.Errors) > 0 {
		err := syntaxError(result.Errors)
		e.obs.Tracer().RecordError(span, err)
		e.obs.Metrics().RecordError(ctx, observability.OpParse, "syntax")
		return nil, err
	}

	return &ParsedFormula{source: source, root: result.Node}, nil
}

// Validate runs all validation passes over a parsed formula and
// returns every issue found. It never returns early except when the
// source exceeds the length limit.
func (e *Engine) Validate(ctx context.Context, f *ParsedFormula) *ValidationResult {
	ctx, span := e.obs.Tracer().StartValidate(ctx, len(f.source))
	defer span.End()
	start := time.Now()

	result := validate.Validate(f.source, f.root, validate.Context{
		Schema: e.schema,
		Limits: e.limits,
	})

	e.obs.Metrics().RecordStage(ctx, observability.OpValidate, time.Since(start))
	e.obs.Metrics().RecordValidation(ctx, result.Valid, len(result.Issues))
	span.SetAttributes(
		observability.ValidAttr(result.Valid),
		observability.IssueCountAttr(len(result.Issues)),
	)

	return toValidationResult(result)
}

// Compile validates a parsed formula and lowers it into an aggregation
// query. An invalid formula yields a *ValidationError carrying the
// validation result.
func (e *Engine) Compile(ctx context.Context, f *ParsedFormula) (*CompiledQuery, error) {
	validation := e.Validate(ctx, f)
	if !validation.Valid {
		return nil, &ValidationError{Result: validation}
	}

	ctx, span := e.obs.Tracer().StartCompile(ctx, len(f.source))
	defer span.End()
	start := time.Now()

	query, err := compile.Compile(f.root)
	if err != nil {
		e.obs.Tracer().RecordError(span, err)
		e.obs.Metrics().RecordError(ctx, observability.OpCompile, "constraint")
		return nil, err
	}

	e.obs.Metrics().RecordStage(ctx, observability.OpCompile, time.Since(start))
	e.obs.Metrics().RecordCompilation(ctx, len(query.Aggs))
	span.SetAttributes(observability.AggCountAttr(len(query.Aggs)))

	return toCompiledQuery(query), nil
}

// Result is the output of processing one formula end to end.
type Result struct {
	Formula    *ParsedFormula
	Validation *ValidationResult
	// Query is set when the formula compiled successfully.
	Query *CompiledQuery
}

// Process runs the whole pipeline on a formula source. Syntax errors
// are returned as *SyntaxError; validation failures return a Result
// with the issues alongside a *ValidationError.
func (e *Engine) Process(ctx context.Context, source string) (*Result, error) {
	ctx, span := e.obs.Tracer().StartProcess(ctx, len(source))
	defer span.End()

	parsed, err := e.Parse(ctx, source)
	if err != nil {
		e.obs.Tracer().RecordError(span, err)
		return nil, err
	}

	validation := e.Validate(ctx, parsed)
	if !validation.Valid {
		err := &ValidationError{Result: validation}
		e.obs.Tracer().RecordError(span, err)
		return &Result{Formula: parsed, Validation: validation}, err
	}

	query, err := e.Compile(ctx, parsed)
	if err != nil {
		e.obs.Tracer().RecordError(span, err)
		return &Result{Formula: parsed, Validation: validation}, err
	}

	e.logger.DebugContext(ctx, "formula processed",
		observability.LogFieldSourceLen, len(source),
		observability.LogFieldIssueCount, len(validation.Issues),
	)

	return &Result{Formula: parsed, Validation: validation, Query: query}, nil
}

func syntaxError(errs []*parser.ParseError) *SyntaxError {
	issues := make([]SyntaxIssue, len(errs))
	for i, perr := range errs {
		message := perr.Message
		if message == "" {
			message = "expected " + perr.Expected + ", found " + perr.Found
		}
		issues[i] = SyntaxIssue{Position: perr.Pos, Message: message}
	}
	return &SyntaxError{Issues: issues}
}

func toValidationResult(r *validate.Result) *ValidationResult {
	issues := make([]Issue, len(r.Issues))
	for i, issue := range r.Issues {
		issues[i] = Issue{
			Severity:    Severity(issue.Severity),
			Message:     issue.Message,
			NodePath:    issue.NodePath,
			Suggestions: issue.Suggestions,
		}
	}
	return &ValidationResult{Valid: r.Valid, Issues: issues}
}

func toCompiledQuery(q *compile.Query) *CompiledQuery {
	shifts := make([]TimeShift, len(q.TimeShifts))
	for i, s := range q.TimeShifts {
		shifts[i] = TimeShift{Agg: s.Agg, Shift: s.Shift}
	}
	return &CompiledQuery{Aggs: q.Aggs, ValuePath: q.ValuePath, TimeShifts: shifts}
}
