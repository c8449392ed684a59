package validate

import (
	"fmt"
	"sort"

	"github.com/vbeck/go-formula/internal/parser"
	"github.com/vbeck/go-formula/internal/registry"
)

// performancePass emits non-blocking hints: a warning when the formula
// fans out into more aggregations than the complexity limit, and an
// informational note when the same sub-aggregation is computed more
// than once.
func (v *validator) performancePass(root parser.Node) {
	aggs := 0
	seen := make(map[string]int)

	walkPaths(root, "$", func(node parser.Node, _ string) {
		call, ok := node.(*parser.FunctionCall)
		if !ok {
			return
		}
		sig, found := registry.Lookup(call.Name)
		if !found || sig.AggKind == registry.AggNone {
			return
		}
		aggs++
		seen[call.String()]++
	})

	if aggs > v.ctx.Limits.MaxComplexity {
		v.add(Issue{
			Severity: SeverityWarning,
			Message: fmt.Sprintf("Formula has high complexity: %d aggregations exceed the limit of %d and may be slow to execute",
				aggs, v.ctx.Limits.MaxComplexity),
			NodePath: "$",
		})
	}

	var repeated []string
	for expr, count := range seen {
		if count > 1 {
			repeated = append(repeated, expr)
		}
	}
	sort.Strings(repeated)
	for _, expr := range repeated {
		v.add(Issue{
			Severity: SeverityInfo,
			Message: fmt.Sprintf("Subexpression %s is computed %d times; the duplicate aggregations could be factored out",
				expr, seen[expr]),
			NodePath: "$",
		})
	}
}
