package validate

import (
	"fmt"
	"strings"

	"github.com/vbeck/go-formula/internal/kql"
	"github.com/vbeck/go-formula/internal/parser"
)

// schemaPass checks every field reference, including fields named
// inside kql filter arguments, against the data-view schema.
func (v *validator) schemaPass(root parser.Node) {
	walkPaths(root, "$", func(node parser.Node, path string) {
		switch n := node.(type) {
		case *parser.FieldRef:
			v.checkField(n.Path, path)
		case *parser.FunctionCall:
			arg, ok := n.NamedArgs["kql"]
			if !ok {
				return
			}
			lit, ok := arg.(*parser.Literal)
			if !ok || lit.Kind != parser.LiteralString {
				return
			}
			clause, err := kql.Parse(lit.Text)
			if err != nil {
				return // arity pass reports the parse failure
			}
			for _, field := range kqlFields(clause) {
				v.checkField(field, path+".named[kql]")
			}
		}
	})
}

func (v *validator) checkField(name, path string) {
	if _, ok := v.ctx.Schema.Lookup(name); ok {
		return
	}
	v.errorf(path, fmt.Sprintf("Field not found: %s", name),
		suggest(name, v.ctx.Schema.Names())...)
}

// kqlFields collects the field names a filter clause references.
// Wildcard field patterns are skipped; they match dynamically.
func kqlFields(clause kql.Clause) []string {
	var fields []string
	var walk func(kql.Clause)
	walk = func(c kql.Clause) {
		switch n := c.(type) {
		case *kql.Match:
			if !strings.Contains(n.Field, "*") {
				fields = append(fields, n.Field)
			}
		case *kql.Range:
			fields = append(fields, n.Field)
		case *kql.And:
			for _, sub := range n.Clauses {
				walk(sub)
			}
		case *kql.Or:
			for _, sub := range n.Clauses {
				walk(sub)
			}
		case *kql.Not:
			walk(n.Inner)
		}
	}
	walk(clause)
	return fields
}
