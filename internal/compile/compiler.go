// Package compile lowers a validated formula AST into an aggregation
// tree for an Elasticsearch-style document store. Metric functions
// become metric aggregations, window and time-series functions become
// pipeline aggregations, and the arithmetic glue between them becomes
// a bucket_script over buckets_path references.
package compile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vbeck/go-formula/internal/kql"
	"github.com/vbeck/go-formula/internal/parser"
	"github.com/vbeck/go-formula/internal/registry"
)

// maxAggregations caps how many sibling aggregations a single formula
// may expand into before compilation aborts.
const maxAggregations = 50

// Compilation errors.
var (
	ErrTooManyAggregations = errors.New("formula expands beyond the target aggregation limit")
	ErrBareFieldReference  = errors.New("field reference outside an aggregation function")
	ErrStringOperand       = errors.New("string literal used as a numeric value")
	ErrNotAField           = errors.New("aggregation argument must be a field reference")
)

// ConstraintError wraps a target-constraint violation with the node
// path where it occurred.
type ConstraintError struct {
	NodePath string
	Err      error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("target constraint violation at %s: %s", e.NodePath, e.Err)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// TimeShift records that one aggregation must be executed against a
// shifted time range. The executor splits shifted aggregations into
// separate requests; the compiler only marks them.
type TimeShift struct {
	// Agg is the sibling aggregation name carrying the shift.
	Agg string
	// Shift is the raw shift value, e.g. "1w" or "previous".
	Shift string
}

// Query is the compiled output: a set of sibling aggregations with the
// formula's value produced by the aggregation named "result".
type Query struct {
	Aggs map[string]any
	// ValuePath selects the formula value within the response, e.g.
	// "result" or "result[50.0]" for percentile-backed formulas.
	ValuePath  string
	TimeShifts []TimeShift
}

// Body wraps the aggregations into a full search request body.
func (q *Query) Body() map[string]any {
	return map[string]any{"aggs": q.Aggs}
}

type compiler struct {
	aggs   map[string]any
	shifts []TimeShift
	// byExpr deduplicates aggregations: identical canonical call
	// strings share one sibling aggregation.
	byExpr map[string]string
	// params maps a buckets_path to its script parameter name.
	params  map[string]string
	nextAgg int
}

// value is the result of compiling one subtree: a script expression
// over named parameters, each bound to a buckets_path.
type value struct {
	script string
	refs   map[string]string
}

func scriptValue(script string) value {
	return value{script: script, refs: map[string]string{}}
}

// Compile lowers the AST into a query. The caller must have validated
// the formula first; compiling an unvalidated tree is a programming
// error and unsupported node shapes are reported as errors rather
// than silently dropped.
func Compile(root parser.Node) (*Query, error) {
	c := &compiler{
		aggs:   make(map[string]any),
		byExpr: make(map[string]string),
		params: make(map[string]string),
	}

	// A formula that is exactly one aggregation function compiles to a
	// single aggregation named "result" with no bucket_script glue.
	if call, ok := root.(*parser.FunctionCall); ok {
		if sig, found := registry.Lookup(call.Name); found && sig.AggKind != registry.AggNone {
			valuePath, err := c.compileAgg(call, sig, "result", "$")
			if err != nil {
				return nil, err
			}
			return &Query{Aggs: c.aggs, ValuePath: valuePath, TimeShifts: c.shifts}, nil
		}
	}

	val, err := c.compileNode(root, "$")
	if err != nil {
		return nil, err
	}

	paths := make(map[string]any, len(val.refs))
	for param, path := range val.refs {
		paths[param] = path
	}
	c.aggs["result"] = map[string]any{
		"bucket_script": map[string]any{
			"buckets_path": paths,
			"script":       val.script,
		},
	}
	return &Query{Aggs: c.aggs, ValuePath: "result", TimeShifts: c.shifts}, nil
}

func (c *compiler) compileNode(node parser.Node, path string) (value, error) {
	switch n := node.(type) {
	case *parser.Literal:
		switch n.Kind {
		case parser.LiteralNumber:
			return scriptValue(formatNumber(n.Number)), nil
		case parser.LiteralBool:
			return scriptValue(strconv.FormatBool(n.Bool)), nil
		}
		return value{}, &ConstraintError{NodePath: path, Err: ErrStringOperand}

	case *parser.FieldRef:
		return value{}, &ConstraintError{NodePath: path, Err: ErrBareFieldReference}

	case *parser.UnaryOp:
		operand, err := c.compileNode(n.Operand, path+".operand")
		if err != nil {
			return value{}, err
		}
		if n.Operator == "NOT" {
			return value{script: "!(" + operand.script + ")", refs: operand.refs}, nil
		}
		return value{script: "-(" + operand.script + ")", refs: operand.refs}, nil

	case *parser.BinaryOp:
		left, err := c.compileNode(n.Left, path+".left")
		if err != nil {
			return value{}, err
		}
		right, err := c.compileNode(n.Right, path+".right")
		if err != nil {
			return value{}, err
		}
		return value{
			script: "(" + left.script + " " + scriptOperator(n.Operator) + " " + right.script + ")",
			refs:   mergeRefs(left.refs, right.refs),
		}, nil

	case *parser.FunctionCall:
		return c.compileCall(n, path)
	}

	return value{}, &ConstraintError{NodePath: path, Err: errors.New("unsupported node")}
}

func (c *compiler) compileCall(call *parser.FunctionCall, path string) (value, error) {
	sig, ok := registry.Lookup(call.Name)
	if !ok {
		return value{}, &ConstraintError{NodePath: path, Err: fmt.Errorf("unknown function %s", call.Name)}
	}

	if sig.AggKind == registry.AggNone {
		args := make([]any, len(call.Args))
		refs := map[string]string{}
		for i, arg := range call.Args {
			v, err := c.compileNode(arg, path+".args["+strconv.Itoa(i)+"]")
			if err != nil {
				return value{}, err
			}
			args[i] = v.script
			refs = mergeRefs(refs, v.refs)
		}
		return value{script: fmt.Sprintf(sig.ScriptTemplate, args...), refs: refs}, nil
	}

	// Identical aggregations collapse into one sibling.
	canonical := call.String()
	if bucketsPath, seen := c.byExpr[canonical]; seen {
		return c.refValue(bucketsPath), nil
	}

	name := c.nextAggName()
	bucketsPath, err := c.compileAgg(call, sig, name, path)
	if err != nil {
		return value{}, err
	}
	c.byExpr[canonical] = bucketsPath
	return c.refValue(bucketsPath), nil
}

// compileAgg materializes one aggregation under the given sibling name
// and returns the buckets_path other aggregations use to reference its
// value.
func (c *compiler) compileAgg(call *parser.FunctionCall, sig *registry.FunctionSignature, name, path string) (string, error) {
	if len(c.aggs) >= maxAggregations {
		return "", &ConstraintError{NodePath: path, Err: ErrTooManyAggregations}
	}

	var body map[string]any
	var bucketsPath string
	var err error

	switch sig.AggKind {
	case registry.AggMetric:
		body, bucketsPath, err = c.metricAgg(call, sig, name, path)
	case registry.AggPipeline:
		body, bucketsPath, err = c.pipelineAgg(call, sig, name, path)
	}
	if err != nil {
		return "", err
	}

	if shift, ok := stringArg(call, "shift"); ok {
		body["meta"] = map[string]any{"time_shift": shift}
		c.shifts = append(c.shifts, TimeShift{Agg: name, Shift: shift})
	}

	c.aggs[name] = body
	return bucketsPath, nil
}

func (c *compiler) metricAgg(call *parser.FunctionCall, sig *registry.FunctionSignature, name, path string) (map[string]any, string, error) {
	field := ""
	if len(call.Args) > 0 {
		ref, ok := call.Args[0].(*parser.FieldRef)
		if !ok {
			return nil, "", &ConstraintError{NodePath: path + ".args[0]", Err: ErrNotAField}
		}
		field = ref.Path
	}

	metric, valuePath := metricBody(call, sig, field)

	kqlText, filtered := stringArg(call, "kql")
	if !filtered {
		if metric == nil {
			// Bare count() reads the bucket document count directly.
			return map[string]any{"filter": map[string]any{"match_all": map[string]any{}}},
				name + ">_count", nil
		}
		return metric, joinPath(name, valuePath), nil
	}

	clause, kqlErr := kql.Parse(kqlText)
	if kqlErr != nil {
		return nil, "", &ConstraintError{NodePath: path, Err: kqlErr}
	}
	filter := map[string]any{"filter": filterQuery(clause)}
	if metric == nil {
		return filter, name + ">_count", nil
	}
	filter["aggs"] = map[string]any{"value": metric}
	return filter, name + ">" + joinPath("value", valuePath), nil
}

// metricBody builds the metric aggregation object and the sub-path
// selecting its value. A nil body means the metric is the bucket's own
// document count.
func metricBody(call *parser.FunctionCall, sig *registry.FunctionSignature, field string) (map[string]any, string) {
	switch sig.Name {
	case "count":
		if field == "" {
			return nil, ""
		}
		return map[string]any{"value_count": map[string]any{"field": field}}, ""

	case "median":
		return map[string]any{
			"percentiles": map[string]any{"field": field, "percents": []any{50.0}},
		}, "[50.0]"

	case "percentile":
		p := numberArg(call, "percentile", 95)
		return map[string]any{
			"percentiles": map[string]any{"field": field, "percents": []any{p}},
		}, "[" + percentKey(p) + "]"

	case "percentile_rank":
		v := numberArg(call, "value", 0)
		return map[string]any{
			"percentile_ranks": map[string]any{"field": field, "values": []any{v}},
		}, "[" + percentKey(v) + "]"

	case "standard_deviation":
		return map[string]any{"extended_stats": map[string]any{"field": field}}, ".std_deviation"

	case "last_value":
		sortField, ok := stringArg(call, "sort")
		if !ok {
			sortField = "@timestamp"
		}
		return map[string]any{
			"top_metrics": map[string]any{
				"metrics": map[string]any{"field": field},
				"sort":    map[string]any{sortField: "desc"},
				"size":    1,
			},
		}, "[" + field + "]"
	}

	return map[string]any{sig.TargetAgg: map[string]any{"field": field}}, ""
}

func (c *compiler) pipelineAgg(call *parser.FunctionCall, sig *registry.FunctionSignature, name, path string) (map[string]any, string, error) {
	source, err := c.pipelineSource(call.Args[0], path+".args[0]")
	if err != nil {
		return nil, "", err
	}

	params := map[string]any{"buckets_path": source}
	switch sig.Name {
	case "differences":
		params["lag"] = 1
	case "moving_average":
		params["window"] = int(numberArg(call, "window", 5))
		params["script"] = "MovingFunctions.unweightedAvg(values)"
	}

	return map[string]any{sig.TargetAgg: params}, name, nil
}

// pipelineSource compiles the input of a pipeline aggregation into a
// sibling buckets_path. Aggregation calls reference their own sibling;
// anything else is materialized as a bucket_script sibling first.
func (c *compiler) pipelineSource(node parser.Node, path string) (string, error) {
	if call, ok := node.(*parser.FunctionCall); ok {
		if sig, found := registry.Lookup(call.Name); found && sig.AggKind != registry.AggNone {
			canonical := call.String()
			if bucketsPath, seen := c.byExpr[canonical]; seen {
				return bucketsPath, nil
			}
			name := c.nextAggName()
			bucketsPath, err := c.compileAgg(call, sig, name, path)
			if err != nil {
				return "", err
			}
			c.byExpr[canonical] = bucketsPath
			return bucketsPath, nil
		}
	}

	val, err := c.compileNode(node, path)
	if err != nil {
		return "", err
	}
	if len(c.aggs) >= maxAggregations {
		return "", &ConstraintError{NodePath: path, Err: ErrTooManyAggregations}
	}
	paths := make(map[string]any, len(val.refs))
	for param, refPath := range val.refs {
		paths[param] = refPath
	}
	name := c.nextAggName()
	c.aggs[name] = map[string]any{
		"bucket_script": map[string]any{
			"buckets_path": paths,
			"script":       val.script,
		},
	}
	return name, nil
}

// refValue wraps a buckets_path into a one-parameter script value,
// reusing the parameter name if the path was referenced before.
func (c *compiler) refValue(bucketsPath string) value {
	param, ok := c.params[bucketsPath]
	if !ok {
		param = paramName(len(c.params))
		c.params[bucketsPath] = param
	}
	return value{
		script: "params." + param,
		refs:   map[string]string{param: bucketsPath},
	}
}

func (c *compiler) nextAggName() string {
	name := "agg_" + strconv.Itoa(c.nextAgg)
	c.nextAgg++
	return name
}

// paramName yields a, b, ..., z, a26, a27, ... for script parameters.
func paramName(i int) string {
	if i < 26 {
		return string(rune('a' + i))
	}
	return "a" + strconv.Itoa(i)
}

func mergeRefs(a, b map[string]string) map[string]string {
	merged := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

func scriptOperator(op string) string {
	switch op {
	case "AND":
		return "&&"
	case "OR":
		return "||"
	}
	return op
}

// formatNumber renders a numeric literal without float artifacts, so
// 0.1 + 0.2 style inputs round-trip as written.
func formatNumber(f float64) string {
	return decimal.NewFromFloat(f).String()
}

// percentKey renders a percentile for a buckets_path key the way the
// document store names percentile buckets, always with a decimal part.
func percentKey(p float64) string {
	s := decimal.NewFromFloat(p).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func stringArg(call *parser.FunctionCall, key string) (string, bool) {
	arg, ok := call.NamedArgs[key]
	if !ok {
		return "", false
	}
	lit, ok := arg.(*parser.Literal)
	if !ok || lit.Kind != parser.LiteralString {
		return "", false
	}
	return lit.Text, true
}

func numberArg(call *parser.FunctionCall, key string, fallback float64) float64 {
	arg, ok := call.NamedArgs[key]
	if !ok {
		return fallback
	}
	lit, ok := arg.(*parser.Literal)
	if !ok || lit.Kind != parser.LiteralNumber {
		return fallback
	}
	return lit.Number
}

func joinPath(name, sub string) string {
	if sub == "" {
		return name
	}
	if strings.HasPrefix(sub, "[") || strings.HasPrefix(sub, ".") {
		return name + sub
	}
	return name + ">" + sub
}
