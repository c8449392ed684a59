package parser

import (
	"strings"
	"testing"

	"github.com/vbeck/go-formula/internal/lexer"
)

func parseSource(t *testing.T, input string) Node {
	t.Helper()
	tokens, lexErr := lexer.NewTokenizer(input).TokenizeAll()
	if lexErr != nil {
		t.Fatalf("tokenize %q: %v", input, lexErr)
	}
	node, errs := NewParser(tokens).Parse()
	if len(errs) > 0 {
		t.Fatalf("parse %q: %v", input, errs[0])
	}
	return node
}

func parseErrors(t *testing.T, input string) []*ParseError {
	t.Helper()
	tokens, lexErr := lexer.NewTokenizer(input).TokenizeAll()
	if lexErr != nil {
		t.Fatalf("tokenize %q: %v", input, lexErr)
	}
	node, errs := NewParser(tokens).Parse()
	if node != nil {
		t.Fatalf("parse %q: expected failure, got tree %s", input, node.String())
	}
	if len(errs) == 0 {
		t.Fatalf("parse %q: expected errors, got none", input)
	}
	return errs
}

func TestParseFunctionCall(t *testing.T) {
	node := parseSource(t, "sum(bytes)")

	call, ok := node.(*FunctionCall)
	if !ok {
		t.Fatalf("expected FunctionCall, got %T", node)
	}
	if call.Name != "sum" {
		t.Errorf("expected function name sum, got %q", call.Name)
	}
	if len(call.Args) != 1 {
		t.Fatalf("expected 1 argument, got %d", len(call.Args))
	}
	field, ok := call.Args[0].(*FieldRef)
	if !ok {
		t.Fatalf("expected FieldRef argument, got %T", call.Args[0])
	}
	if field.Path != "bytes" {
		t.Errorf("expected field bytes, got %q", field.Path)
	}
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"2 + 3 * 4", "(2 + (3 * 4))"},
		{"(2 + 3) * 4", "((2 + 3) * 4)"},
		{"2 * 3 + 4", "((2 * 3) + 4)"},
		{"sum(a) / count() > 5", "((sum(a) / count()) > 5)"},
		{"a > 1 AND b > 2", "((a > 1) AND (b > 2))"},
		{"a > 1 OR b > 2 AND c > 3", "((a > 1) OR ((b > 2) AND (c > 3)))"},
		{"NOT a > 1", "((NOT a) > 1)"},
		{"-2 + 3", "((-2) + 3)"},
		{"1 - 2 - 3", "((1 - 2) - 3)"},
	}

	for _, tt := range tests {
		node := parseSource(t, tt.input)
		if node.String() != tt.expected {
			t.Errorf("parse(%q) = %s, expected %s", tt.input, node.String(), tt.expected)
		}
	}
}

func TestParsePrecedenceShape(t *testing.T) {
	// validate(parse("2 + 3 * 4")): top node is BinaryOp{"+", 2, BinaryOp{"*", 3, 4}}
	node := parseSource(t, "2 + 3 * 4")

	add, ok := node.(*BinaryOp)
	if !ok || add.Operator != "+" {
		t.Fatalf("expected top-level +, got %s", node.String())
	}
	left, ok := add.Left.(*Literal)
	if !ok || left.Number != 2 {
		t.Fatalf("expected literal 2 on the left, got %s", add.Left.String())
	}
	mul, ok := add.Right.(*BinaryOp)
	if !ok || mul.Operator != "*" {
		t.Fatalf("expected * on the right, got %s", add.Right.String())
	}
}

func TestParseNamedArguments(t *testing.T) {
	node := parseSource(t, "sum(bytes, kql='status:200', shift='1w')")

	call := node.(*FunctionCall)
	if len(call.Args) != 1 {
		t.Fatalf("expected 1 positional argument, got %d", len(call.Args))
	}
	if len(call.NamedArgs) != 2 {
		t.Fatalf("expected 2 named arguments, got %d", len(call.NamedArgs))
	}
	kql, ok := call.NamedArgs["kql"].(*Literal)
	if !ok || kql.Kind != LiteralString || kql.Text != "status:200" {
		t.Errorf("unexpected kql argument: %#v", call.NamedArgs["kql"])
	}
}

func TestParseNamedArgumentsAnyOrder(t *testing.T) {
	a := parseSource(t, "percentile(bytes, percentile=95, shift='1w')")
	b := parseSource(t, "percentile(bytes, shift='1w', percentile=95)")
	if a.String() != b.String() {
		t.Errorf("named argument order changed canonical form: %s vs %s", a.String(), b.String())
	}
}

func TestParseNestedCalls(t *testing.T) {
	node := parseSource(t, "moving_average(sum(bytes), window=5)")

	outer := node.(*FunctionCall)
	if outer.Name != "moving_average" {
		t.Fatalf("expected moving_average, got %q", outer.Name)
	}
	inner, ok := outer.Args[0].(*FunctionCall)
	if !ok || inner.Name != "sum" {
		t.Fatalf("expected nested sum call, got %T", outer.Args[0])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
	}{
		{"Missing closing paren", "sum(bytes", ")"},
		{"Unmatched closing paren", "sum(bytes))", "end of formula"},
		{"Trailing tokens", "sum(bytes) count()", "end of formula"},
		{"Missing operand", "sum(bytes) +", "expression"},
		{"Positional after named", "sum(kql='a', bytes)", "positional argument after named argument"},
		{"Duplicate named argument", "sum(bytes, kql='a', kql='b')", "duplicate argument"},
		{"Empty formula", "", "expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := parseErrors(t, tt.input)
			found := false
			for _, err := range errs {
				if strings.Contains(err.Error(), tt.contains) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected an error containing %q, got %v", tt.contains, errs)
			}
		})
	}
}

func TestParseReportsMultipleErrors(t *testing.T) {
	// Recovery should surface more than the first error in one pass.
	errs := parseErrors(t, "sum(bytes + * count( -")
	if len(errs) < 2 {
		t.Errorf("expected multiple errors from one pass, got %d: %v", len(errs), errs)
	}
	if len(errs) > maxParseErrors {
		t.Errorf("error count %d exceeds bound %d", len(errs), maxParseErrors)
	}
}

func TestParseIdempotent(t *testing.T) {
	input := "moving_average(sum(bytes, kql='status:200'), window=5) / count()"
	first := parseSource(t, input)
	second := parseSource(t, input)
	if first.String() != second.String() {
		t.Errorf("re-parsing produced a different tree: %s vs %s", first.String(), second.String())
	}
}

func TestParseNestingBound(t *testing.T) {
	// Unclosed groups never reach the closing-paren check, so without a
	// depth bound this input would recurse once per '(' and exhaust the
	// stack instead of returning an error.
	input := strings.Repeat("(", 100000) + "1"

	result := ParseSource(input)
	if result.Node != nil {
		t.Fatalf("expected failure, got tree %s", result.Node.String())
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected errors, got none")
	}
	if !strings.Contains(result.Errors[0].Error(), "nested") {
		t.Errorf("expected nesting error, got %q", result.Errors[0].Error())
	}

	for _, spell := range []string{
		strings.Repeat("-", 100000) + "1",
		strings.Repeat("abs(", 100000) + "1" + strings.Repeat(")", 100000),
	} {
		result := ParseSource(spell)
		if result.Node != nil {
			t.Fatal("expected deeply nested input to fail")
		}
	}
}

func TestParseNestingWithinBound(t *testing.T) {
	input := strings.Repeat("(", 100) + "1" + strings.Repeat(")", 100)
	node := parseSource(t, input)
	lit, ok := node.(*Literal)
	if !ok || lit.Number != 1 {
		t.Fatalf("expected literal 1, got %s", node.String())
	}
}

func TestDepth(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"1", 1},
		{"1 + 2", 2},
		{"sum(bytes)", 2},
		{"moving_average(sum(bytes), window=5)", 3},
	}

	for _, tt := range tests {
		node := parseSource(t, tt.input)
		if got := Depth(node); got != tt.expected {
			t.Errorf("Depth(%q) = %d, expected %d", tt.input, got, tt.expected)
		}
	}
}

func TestWalkVisitsAllNodes(t *testing.T) {
	node := parseSource(t, "sum(bytes, kql='a') / count()")

	var count int
	Walk(node, func(Node) { count++ })

	// BinaryOp, sum call, bytes field, kql literal, count call.
	if count != 5 {
		t.Errorf("expected 5 nodes, got %d", count)
	}
}
