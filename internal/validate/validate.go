// Package validate checks a parsed formula for security, syntax, type
// and schema correctness, and emits performance hints. All passes
// accumulate issues into a single result; nothing stops early except
// the absolute formula-length check.
package validate

import (
	"sort"
	"strconv"

	"github.com/vbeck/go-formula/internal/parser"
	"github.com/vbeck/go-formula/internal/schema"
)

// Severity classifies a validation issue.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
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
	Severity    Severity
	Message     string
	NodePath    string
	Suggestions []string
}

// Result is the outcome of validating one formula. Valid is true iff
// no issue has severity error.
type Result struct {
	Valid  bool
	Issues []Issue
}

// SecurityLimits bounds formula size and complexity. The zero value of
// any field falls back to its default.
type SecurityLimits struct {
	// MaxLength is the maximum formula source length in characters.
	MaxLength int
	// MaxDepth is the maximum AST nesting depth.
	MaxDepth int
	// MaxComplexity is the aggregation fan-out above which a
	// high-complexity warning is emitted.
	MaxComplexity int
}

// Default limit values.
const (
	DefaultMaxLength     = 10000
	DefaultMaxDepth      = 20
	DefaultMaxComplexity = 30

	// maxFunctionCalls caps the total number of function calls in one
	// formula regardless of nesting shape.
	maxFunctionCalls = 100
)

// DefaultSecurityLimits returns the default limits.
func DefaultSecurityLimits() SecurityLimits {
	return SecurityLimits{
		MaxLength:     DefaultMaxLength,
		MaxDepth:      DefaultMaxDepth,
		MaxComplexity: DefaultMaxComplexity,
	}
}

func (l SecurityLimits) withDefaults() SecurityLimits {
	if l.MaxLength <= 0 {
		l.MaxLength = DefaultMaxLength
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxDepth
	}
	if l.MaxComplexity <= 0 {
		l.MaxComplexity = DefaultMaxComplexity
	}
	return l
}

// Context carries the optional inputs of a validation run.
type Context struct {
	// Schema enables field-existence and field-type checks when set.
	Schema *schema.Schema
	Limits SecurityLimits
}

type validator struct {
	source string
	ctx    Context
	issues []Issue
}

func (v *validator) add(issue Issue) {
	v.issues = append(v.issues, issue)
}

func (v *validator) errorf(path, message string, suggestions ...string) {
	v.add(Issue{Severity: SeverityError, Message: message, NodePath: path, Suggestions: suggestions})
}

// Validate runs all passes over the AST in order: security/size,
// syntax/arity, types, schema fields, performance heuristics. A
// formula exceeding the length limit short-circuits every other pass.
func Validate(source string, root parser.Node, ctx Context) *Result {
	ctx.Limits = ctx.Limits.withDefaults()
	v := &validator{source: source, ctx: ctx}

	if len(source) > ctx.Limits.MaxLength {
		v.errorf("$", "Formula too long")
		return v.result()
	}

	v.securityPass(root)
	v.arityPass(root)
	v.typePass(root)
	if ctx.Schema != nil {
		v.schemaPass(root)
	}
	v.performancePass(root)

	return v.result()
}

func (v *validator) result() *Result {
	valid := true
	for _, issue := range v.issues {
		if issue.Severity == SeverityError {
			valid = false
			break
		}
	}
	return &Result{Valid: valid, Issues: v.issues}
}

// walkPaths traverses the tree depth-first, calling fn with each node
// and its path (e.g. "$.args[0].left"). Named arguments use their key:
// "$.named[kql]".
func walkPaths(node parser.Node, path string, fn func(parser.Node, string)) {
	if node == nil {
		return
	}
	fn(node, path)
	switch n := node.(type) {
	case *parser.BinaryOp:
		walkPaths(n.Left, path+".left", fn)
		walkPaths(n.Right, path+".right", fn)
	case *parser.UnaryOp:
		walkPaths(n.Operand, path+".operand", fn)
	case *parser.FunctionCall:
		for i, arg := range n.Args {
			walkPaths(arg, path+".args["+strconv.Itoa(i)+"]", fn)
		}
		for _, key := range sortedKeys(n.NamedArgs) {
			walkPaths(n.NamedArgs[key], path+".named["+key+"]", fn)
		}
	}
}

func sortedKeys(m map[string]parser.Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
