package validate

import (
	"fmt"
	"strings"

	"github.com/vbeck/go-formula/internal/parser"
)

// forbiddenPatterns are substrings that must never appear inside
// string literals. Matching is case-insensitive. These violations are
// always errors and cannot be downgraded by configuration.
var forbiddenPatterns = []string{
	"<script",
	"</script",
	"javascript:",
	"eval(",
	"document.",
	"window.",
	"${",
	"onerror=",
	"onload=",
}

// securityPass enforces nesting depth, function-call count and
// forbidden-pattern limits. The absolute length limit is checked by
// Validate before any pass runs.
func (v *validator) securityPass(root parser.Node) {
	if depth := parser.Depth(root); depth > v.ctx.Limits.MaxDepth {
		v.errorf("$", fmt.Sprintf("Formula is too deeply nested: depth %d exceeds maximum %d", depth, v.ctx.Limits.MaxDepth))
	}

	calls := 0
	parser.Walk(root, func(n parser.Node) {
		if _, ok := n.(*parser.FunctionCall); ok {
			calls++
		}
	})
	if calls > maxFunctionCalls {
		v.errorf("$", fmt.Sprintf("Too many function calls: %d exceeds maximum %d", calls, maxFunctionCalls))
	}

	walkPaths(root, "$", func(n parser.Node, path string) {
		lit, ok := n.(*parser.Literal)
		if !ok || lit.Kind != parser.LiteralString {
			return
		}
		lower := strings.ToLower(lit.Text)
		for _, pattern := range forbiddenPatterns {
			if strings.Contains(lower, pattern) {
				v.errorf(path, fmt.Sprintf("Forbidden pattern detected in string literal: %q", pattern))
				return
			}
		}
	})
}
