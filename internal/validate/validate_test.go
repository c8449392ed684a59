package validate

import (
	"strings"
	"testing"

	"github.com/vbeck/go-formula/internal/lexer"
	"github.com/vbeck/go-formula/internal/parser"
	"github.com/vbeck/go-formula/internal/schema"
)

func mustParse(t *testing.T, source string) parser.Node {
	t.Helper()
	tokens, err := lexer.NewTokenizer(source).TokenizeAll()
	if err != nil {
		t.Fatalf("tokenize %q: %v", source, err)
	}
	node, errs := parser.NewParser(tokens).Parse()
	if len(errs) > 0 {
		t.Fatalf("parse %q: %v", source, errs[0])
	}
	return node
}

func validateSource(t *testing.T, source string, ctx Context) *Result {
	t.Helper()
	return Validate(source, mustParse(t, source), ctx)
}

func testSchema() *schema.Schema {
	return schema.New([]schema.Field{
		{Name: "bytes_sent", Type: "number"},
		{Name: "bytes_received", Type: "number"},
		{Name: "status", Type: "number"},
		{Name: "host", Type: "string"},
		{Name: "timestamp", Type: "date"},
		{Name: "secure", Type: "boolean"},
	})
}

func findIssue(result *Result, substring string) (Issue, bool) {
	for _, issue := range result.Issues {
		if strings.Contains(issue.Message, substring) {
			return issue, true
		}
	}
	return Issue{}, false
}

func TestValidateCleanFormula(t *testing.T) {
	result := validateSource(t, "sum(bytes_sent) / count()", Context{Schema: testSchema()})
	if !result.Valid {
		t.Fatalf("expected valid, got issues: %+v", result.Issues)
	}
	if len(result.Issues) != 0 {
		t.Fatalf("expected no issues, got %+v", result.Issues)
	}
}

func TestValidateUnknownFunction(t *testing.T) {
	result := validateSource(t, "unknown_func(bytes_sent)", Context{Schema: testSchema()})
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	issue, ok := findIssue(result, "Unknown function: unknown_func")
	if !ok {
		t.Fatalf("missing unknown-function issue: %+v", result.Issues)
	}
	if issue.Severity != SeverityError {
		t.Fatalf("expected error severity, got %s", issue.Severity)
	}
	errors := 0
	for _, i := range result.Issues {
		if i.Severity == SeverityError {
			errors++
		}
	}
	if errors != 1 {
		t.Fatalf("expected exactly one error, got %d: %+v", errors, result.Issues)
	}
}

func TestValidateFunctionSuggestions(t *testing.T) {
	result := validateSource(t, "sim(bytes_sent)", Context{Schema: testSchema()})
	issue, ok := findIssue(result, "Unknown function: sim")
	if !ok {
		t.Fatalf("missing issue: %+v", result.Issues)
	}
	found := false
	for _, s := range issue.Suggestions {
		if s == "sum" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'sum' suggestion, got %v", issue.Suggestions)
	}
}

func TestValidateArity(t *testing.T) {
	tests := []struct {
		source  string
		message string
	}{
		{"pow(2)", "Function pow requires at least 2 arguments, got 1"},
		{"sum()", "Function sum requires at least 1 argument, got 0"},
		{"sum(bytes_sent, status)", "Function sum requires at most 1 argument, got 2"},
		{"count(bytes_sent, status)", "Function count requires at most 1 argument, got 2"},
	}
	for _, tt := range tests {
		result := validateSource(t, tt.source, Context{Schema: testSchema()})
		if result.Valid {
			t.Errorf("%s: expected invalid", tt.source)
			continue
		}
		if _, ok := findIssue(result, tt.message); !ok {
			t.Errorf("%s: missing %q in %+v", tt.source, tt.message, result.Issues)
		}
	}
}

func TestValidateUnknownNamedArgument(t *testing.T) {
	result := validateSource(t, "sum(bytes_sent, kqll='status:200')", Context{Schema: testSchema()})
	issue, ok := findIssue(result, "Unknown argument: kqll")
	if !ok {
		t.Fatalf("missing issue: %+v", result.Issues)
	}
	if len(issue.Suggestions) == 0 || issue.Suggestions[0] != "kql" {
		t.Fatalf("expected 'kql' suggestion first, got %v", issue.Suggestions)
	}
}

func TestValidateFormulaTooLong(t *testing.T) {
	source := "sum(" + strings.Repeat("a", 10001) + ")"
	// Validate must short-circuit with only the length error and skip
	// every other pass, including field checks that would also fail.
	result := Validate(source, mustParse(t, source), Context{Schema: testSchema()})
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if len(result.Issues) != 1 {
		t.Fatalf("expected exactly one issue, got %+v", result.Issues)
	}
	if result.Issues[0].Message != "Formula too long" {
		t.Fatalf("unexpected message: %q", result.Issues[0].Message)
	}
}

func TestValidateDepthLimit(t *testing.T) {
	source := strings.Repeat("abs(", 25) + "1" + strings.Repeat(")", 25)
	result := validateSource(t, source, Context{})
	if _, ok := findIssue(result, "too deeply nested"); !ok {
		t.Fatalf("missing depth issue: %+v", result.Issues)
	}
}

func TestValidateForbiddenPattern(t *testing.T) {
	result := validateSource(t, `sum(bytes_sent, kql='message:"<script>alert(1)</script>"')`, Context{Schema: testSchema()})
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if _, ok := findIssue(result, "Forbidden pattern"); !ok {
		t.Fatalf("missing forbidden-pattern issue: %+v", result.Issues)
	}
}

func TestValidateTypeMismatch(t *testing.T) {
	result := validateSource(t, `sum(bytes_sent) > "x"`, Context{Schema: testSchema()})
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	issue, ok := findIssue(result, "Type mismatch")
	if !ok {
		t.Fatalf("missing type issue: %+v", result.Issues)
	}
	if !strings.Contains(issue.Message, "number") || !strings.Contains(issue.Message, "string") {
		t.Fatalf("message should name both types: %q", issue.Message)
	}
}

func TestValidateArgumentTypeMismatch(t *testing.T) {
	result := validateSource(t, `pow(bytes_sent, "two")`, Context{Schema: testSchema()})
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if _, ok := findIssue(result, "Type mismatch: argument 2 of pow()"); !ok {
		t.Fatalf("missing argument type issue: %+v", result.Issues)
	}
}

func TestValidateBooleanOperators(t *testing.T) {
	result := validateSource(t, "gt(sum(bytes_sent), 100) AND lt(count(), 50)", Context{Schema: testSchema()})
	if !result.Valid {
		t.Fatalf("expected valid, got %+v", result.Issues)
	}

	result = validateSource(t, "sum(bytes_sent) AND count()", Context{Schema: testSchema()})
	if result.Valid {
		t.Fatal("expected invalid result for AND over numbers")
	}
}

func TestValidateFieldNotFound(t *testing.T) {
	result := validateSource(t, "sum(bytes)", Context{Schema: testSchema()})
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	issue, ok := findIssue(result, "Field not found: bytes")
	if !ok {
		t.Fatalf("missing field issue: %+v", result.Issues)
	}
	found := false
	for _, s := range issue.Suggestions {
		if s == "bytes_sent" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'bytes_sent' suggestion, got %v", issue.Suggestions)
	}
}

func TestValidateNoSchemaSkipsFieldChecks(t *testing.T) {
	result := validateSource(t, "sum(anything_at_all)", Context{})
	if !result.Valid {
		t.Fatalf("expected valid without schema, got %+v", result.Issues)
	}
}

func TestValidateKqlFieldChecked(t *testing.T) {
	result := validateSource(t, "sum(bytes_sent, kql='stats:200')", Context{Schema: testSchema()})
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	issue, ok := findIssue(result, "Field not found: stats")
	if !ok {
		t.Fatalf("missing kql field issue: %+v", result.Issues)
	}
	if issue.NodePath != "$.named[kql]" {
		t.Fatalf("unexpected node path: %q", issue.NodePath)
	}
}

func TestValidateInvalidKql(t *testing.T) {
	result := validateSource(t, "sum(bytes_sent, kql='status:200 AND')", Context{Schema: testSchema()})
	if result.Valid {
		t.Fatal("expected invalid result")
	}
	if _, ok := findIssue(result, "Invalid KQL filter in sum()"); !ok {
		t.Fatalf("missing kql issue: %+v", result.Issues)
	}
}

func TestValidateShiftFormat(t *testing.T) {
	for _, shift := range []string{"1h", "7d", "1w", "3M", "previous", "500ms"} {
		result := validateSource(t, "sum(bytes_sent, shift='"+shift+"')", Context{Schema: testSchema()})
		if !result.Valid {
			t.Errorf("shift %q: expected valid, got %+v", shift, result.Issues)
		}
	}
	for _, shift := range []string{"yesterday", "1", "h", "1 h", "-1d"} {
		result := validateSource(t, "sum(bytes_sent, shift='"+shift+"')", Context{Schema: testSchema()})
		if result.Valid {
			t.Errorf("shift %q: expected invalid", shift)
		}
	}
}

func TestValidateComplexityWarning(t *testing.T) {
	var parts []string
	for i := 0; i < 5; i++ {
		parts = append(parts, "max(bytes_sent, shift='"+string(rune('1'+i))+"d')")
	}
	source := strings.Join(parts, " + ")
	result := validateSource(t, source, Context{
		Schema: testSchema(),
		Limits: SecurityLimits{MaxComplexity: 3},
	})
	if !result.Valid {
		t.Fatalf("warnings must not invalidate: %+v", result.Issues)
	}
	issue, ok := findIssue(result, "high complexity")
	if !ok {
		t.Fatalf("missing complexity warning: %+v", result.Issues)
	}
	if issue.Severity != SeverityWarning {
		t.Fatalf("expected warning severity, got %s", issue.Severity)
	}
}

func TestValidateDuplicateSubexpressionHint(t *testing.T) {
	result := validateSource(t, "sum(bytes_sent) / (sum(bytes_sent) + count())", Context{Schema: testSchema()})
	if !result.Valid {
		t.Fatalf("hints must not invalidate: %+v", result.Issues)
	}
	issue, ok := findIssue(result, "computed 2 times")
	if !ok {
		t.Fatalf("missing duplicate hint: %+v", result.Issues)
	}
	if issue.Severity != SeverityInfo {
		t.Fatalf("expected info severity, got %s", issue.Severity)
	}
}

func TestValidateCustomLimits(t *testing.T) {
	result := validateSource(t, "sum(bytes_sent)", Context{
		Schema: testSchema(),
		Limits: SecurityLimits{MaxLength: 5},
	})
	if result.Valid {
		t.Fatal("expected invalid result with tight length limit")
	}
	if result.Issues[0].Message != "Formula too long" {
		t.Fatalf("unexpected message: %q", result.Issues[0].Message)
	}
}

func TestValidateNodePaths(t *testing.T) {
	result := validateSource(t, "sum(bytes) + max(missing)", Context{Schema: testSchema()})
	var paths []string
	for _, issue := range result.Issues {
		if issue.Severity == SeverityError {
			paths = append(paths, issue.NodePath)
		}
	}
	want := []string{"$.left.args[0]", "$.right.args[0]"}
	if len(paths) != len(want) {
		t.Fatalf("expected %d errors, got %+v", len(want), result.Issues)
	}
	for i, p := range want {
		if paths[i] != p {
			t.Errorf("path %d: got %q, want %q", i, paths[i], p)
		}
	}
}
