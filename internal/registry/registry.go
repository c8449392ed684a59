// Package registry holds the static metadata for every builtin formula
// function. The validator and the query compiler both consult this
// table and nothing else: adding a function means adding exactly one
// entry here.
package registry

import "sort"

// Type describes the value type of an expression.
type Type int

const (
	// TypeUnknown is used when no schema information is available; it
	// is compatible with every other type.
	TypeUnknown Type = iota
	TypeNumber
	TypeString
	TypeBoolean
)

// String returns the lowercase type name used in messages.
func (t Type) String() string {
	switch t {
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeBoolean:
		return "boolean"
	}
	return "unknown"
}

// AggKind classifies how a function lowers into the target query.
type AggKind int

const (
	// AggNone marks pure computations (math, comparison, conditional)
	// that lower into script expressions, not aggregation nodes.
	AggNone AggKind = iota
	// AggMetric marks functions that become a single metric
	// aggregation over a document field.
	AggMetric
	// AggPipeline marks functions that become pipeline aggregations
	// referencing a sibling aggregation via buckets_path.
	AggPipeline
)

// FunctionSignature describes one builtin function. Signatures are
// immutable and defined at process start.
type FunctionSignature struct {
	Name       string
	MinArgs    int
	MaxArgs    int
	Positional []Type
	// NamedArgs lists the accepted named arguments and their types.
	NamedArgs  map[string]Type
	ReturnType Type
	AggKind    AggKind
	// TargetAgg is the aggregation name in the target query DSL, empty
	// for AggNone functions.
	TargetAgg string
	// ScriptTemplate renders AggNone functions into script source;
	// %s placeholders are replaced with the compiled arguments in
	// order.
	ScriptTemplate string
}

// kqlShiftArgs are the named arguments shared by every metric
// function: an optional document filter and an optional time shift.
var kqlShiftArgs = map[string]Type{
	"kql":   TypeString,
	"shift": TypeString,
}

func withKqlShift(extra map[string]Type) map[string]Type {
	merged := make(map[string]Type, len(kqlShiftArgs)+len(extra))
	for k, v := range kqlShiftArgs {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

var signatures = map[string]*FunctionSignature{
	// Statistical aggregations.
	"sum": {
		Name: "sum", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		NamedArgs: kqlShiftArgs, ReturnType: TypeNumber,
		AggKind: AggMetric, TargetAgg: "sum",
	},
	"average": {
		Name: "average", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		NamedArgs: kqlShiftArgs, ReturnType: TypeNumber,
		AggKind: AggMetric, TargetAgg: "avg",
	},
	"median": {
		Name: "median", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		NamedArgs: kqlShiftArgs, ReturnType: TypeNumber,
		AggKind: AggMetric, TargetAgg: "percentiles",
	},
	"min": {
		Name: "min", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		NamedArgs: kqlShiftArgs, ReturnType: TypeNumber,
		AggKind: AggMetric, TargetAgg: "min",
	},
	"max": {
		Name: "max", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		NamedArgs: kqlShiftArgs, ReturnType: TypeNumber,
		AggKind: AggMetric, TargetAgg: "max",
	},
	"count": {
		Name: "count", MinArgs: 0, MaxArgs: 1, Positional: []Type{TypeUnknown},
		NamedArgs: kqlShiftArgs, ReturnType: TypeNumber,
		AggKind: AggMetric, TargetAgg: "value_count",
	},
	"unique_count": {
		Name: "unique_count", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeUnknown},
		NamedArgs: kqlShiftArgs, ReturnType: TypeNumber,
		AggKind: AggMetric, TargetAgg: "cardinality",
	},
	"percentile": {
		Name: "percentile", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		NamedArgs:  withKqlShift(map[string]Type{"percentile": TypeNumber}),
		ReturnType: TypeNumber,
		AggKind:    AggMetric, TargetAgg: "percentiles",
	},
	"percentile_rank": {
		Name: "percentile_rank", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		NamedArgs:  withKqlShift(map[string]Type{"value": TypeNumber}),
		ReturnType: TypeNumber,
		AggKind:    AggMetric, TargetAgg: "percentile_ranks",
	},
	"standard_deviation": {
		Name: "standard_deviation", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		NamedArgs: kqlShiftArgs, ReturnType: TypeNumber,
		AggKind: AggMetric, TargetAgg: "extended_stats",
	},
	"last_value": {
		Name: "last_value", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeUnknown},
		NamedArgs: withKqlShift(map[string]Type{"sort": TypeString}), ReturnType: TypeNumber,
		AggKind: AggMetric, TargetAgg: "top_metrics",
	},

	// Time-series functions.
	"counter_rate": {
		Name: "counter_rate", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		ReturnType: TypeNumber,
		AggKind:    AggPipeline, TargetAgg: "derivative",
	},
	"differences": {
		Name: "differences", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		ReturnType: TypeNumber,
		AggKind:    AggPipeline, TargetAgg: "serial_diff",
	},

	// Window functions.
	"moving_average": {
		Name: "moving_average", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		NamedArgs:  map[string]Type{"window": TypeNumber},
		ReturnType: TypeNumber,
		AggKind:    AggPipeline, TargetAgg: "moving_fn",
	},
	"cumulative_sum": {
		Name: "cumulative_sum", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		ReturnType: TypeNumber,
		AggKind:    AggPipeline, TargetAgg: "cumulative_sum",
	},

	// Math functions.
	"abs": {
		Name: "abs", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "Math.abs(%s)",
	},
	"ceil": {
		Name: "ceil", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "Math.ceil(%s)",
	},
	"floor": {
		Name: "floor", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "Math.floor(%s)",
	},
	"round": {
		Name: "round", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "Math.round(%s)",
	},
	"sqrt": {
		Name: "sqrt", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "Math.sqrt(%s)",
	},
	"cbrt": {
		Name: "cbrt", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "Math.cbrt(%s)",
	},
	"exp": {
		Name: "exp", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "Math.exp(%s)",
	},
	"log": {
		Name: "log", MinArgs: 1, MaxArgs: 1, Positional: []Type{TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "Math.log(%s)",
	},
	"mod": {
		Name: "mod", MinArgs: 2, MaxArgs: 2, Positional: []Type{TypeNumber, TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "(%s %% %s)",
	},
	"pow": {
		Name: "pow", MinArgs: 2, MaxArgs: 2, Positional: []Type{TypeNumber, TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "Math.pow(%s, %s)",
	},
	"clamp": {
		Name: "clamp", MinArgs: 3, MaxArgs: 3, Positional: []Type{TypeNumber, TypeNumber, TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "Math.min(Math.max(%s, %s), %s)",
	},
	"defaults": {
		Name: "defaults", MinArgs: 2, MaxArgs: 2, Positional: []Type{TypeNumber, TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "(%s ?: %s)",
	},

	// Comparison and conditional functions.
	"eq": {
		Name: "eq", MinArgs: 2, MaxArgs: 2, Positional: []Type{TypeNumber, TypeNumber},
		ReturnType: TypeBoolean, ScriptTemplate: "(%s == %s)",
	},
	"gt": {
		Name: "gt", MinArgs: 2, MaxArgs: 2, Positional: []Type{TypeNumber, TypeNumber},
		ReturnType: TypeBoolean, ScriptTemplate: "(%s > %s)",
	},
	"gte": {
		Name: "gte", MinArgs: 2, MaxArgs: 2, Positional: []Type{TypeNumber, TypeNumber},
		ReturnType: TypeBoolean, ScriptTemplate: "(%s >= %s)",
	},
	"lt": {
		Name: "lt", MinArgs: 2, MaxArgs: 2, Positional: []Type{TypeNumber, TypeNumber},
		ReturnType: TypeBoolean, ScriptTemplate: "(%s < %s)",
	},
	"lte": {
		Name: "lte", MinArgs: 2, MaxArgs: 2, Positional: []Type{TypeNumber, TypeNumber},
		ReturnType: TypeBoolean, ScriptTemplate: "(%s <= %s)",
	},
	"ifelse": {
		Name: "ifelse", MinArgs: 3, MaxArgs: 3, Positional: []Type{TypeBoolean, TypeNumber, TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "(%s ? %s : %s)",
	},
	"pick_max": {
		Name: "pick_max", MinArgs: 2, MaxArgs: 2, Positional: []Type{TypeNumber, TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "Math.max(%s, %s)",
	},
	"pick_min": {
		Name: "pick_min", MinArgs: 2, MaxArgs: 2, Positional: []Type{TypeNumber, TypeNumber},
		ReturnType: TypeNumber, ScriptTemplate: "Math.min(%s, %s)",
	},
}

// Lookup returns the signature for a function name. Lookup is
// case-sensitive.
func Lookup(name string) (*FunctionSignature, bool) {
	sig, ok := signatures[name]
	return sig, ok
}

// Names returns all registered function names in sorted order.
func Names() []string {
	names := make([]string, 0, len(signatures))
	for name := range signatures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
