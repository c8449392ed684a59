package lexer

import (
	"testing"
)

func TestTokenizer(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []TokenType
	}{
		{
			name:  "Simple function call",
			input: "sum(bytes)",
			expected: []TokenType{
				TokenIdentifier,
				TokenLParen,
				TokenIdentifier,
				TokenRParen,
				TokenEOF,
			},
		},
		{
			name:  "Arithmetic between calls",
			input: "sum(bytes) / count()",
			expected: []TokenType{
				TokenIdentifier,
				TokenLParen,
				TokenIdentifier,
				TokenRParen,
				TokenOperator,
				TokenIdentifier,
				TokenLParen,
				TokenRParen,
				TokenEOF,
			},
		},
		{
			name:  "Named argument",
			input: "sum(bytes, kql='status:200')",
			expected: []TokenType{
				TokenIdentifier,
				TokenLParen,
				TokenIdentifier,
				TokenComma,
				TokenIdentifier,
				TokenEquals,
				TokenString,
				TokenRParen,
				TokenEOF,
			},
		},
		{
			name:  "Comparison",
			input: "sum(bytes) >= 100",
			expected: []TokenType{
				TokenIdentifier,
				TokenLParen,
				TokenIdentifier,
				TokenRParen,
				TokenOperator,
				TokenNumber,
				TokenEOF,
			},
		},
		{
			name:  "Equality and inequality",
			input: "1 == 2 != 3",
			expected: []TokenType{
				TokenNumber,
				TokenOperator,
				TokenNumber,
				TokenOperator,
				TokenNumber,
				TokenEOF,
			},
		},
		{
			name:  "Word operators",
			input: "a AND b OR NOT c",
			expected: []TokenType{
				TokenIdentifier,
				TokenOperator,
				TokenIdentifier,
				TokenOperator,
				TokenOperator,
				TokenIdentifier,
				TokenEOF,
			},
		},
		{
			name:  "Parenthesized arithmetic",
			input: "(2 + 3) * 4",
			expected: []TokenType{
				TokenLParen,
				TokenNumber,
				TokenOperator,
				TokenNumber,
				TokenRParen,
				TokenOperator,
				TokenNumber,
				TokenEOF,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenizer := NewTokenizer(tt.input)
			tokens, err := tokenizer.TokenizeAll()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(tokens) != len(tt.expected) {
				t.Fatalf("expected %d tokens, got %d", len(tt.expected), len(tokens))
			}

			for i, token := range tokens {
				if token.Type != tt.expected[i] {
					t.Errorf("token %d: expected type %v, got %v (%q)", i, tt.expected[i], token.Type, token.Value)
				}
			}
		})
	}
}

func TestTokenizerValues(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		index    int
		expected string
	}{
		{"Dotted identifier", "sum(cpu.load.pct)", 2, "cpu.load.pct"},
		{"Decimal number", "round(1.25)", 2, "1.25"},
		{"Exponent number", "2.5e3 + 1", 0, "2.5e3"},
		{"Negative exponent", "1e-2", 0, "1e-2"},
		{"Single quoted string", "sum(bytes, kql='status:200')", 6, "status:200"},
		{"Double quoted string", `count(kql="a AND b")`, 4, "a AND b"},
		{"Escaped quote", `count(kql='it\'s')`, 4, "it's"},
		{"Uppercase AND canonicalized", "a and b", 1, "AND"},
		{"Multi-byte string literal", "sum(bytes, kql='host:café')", 6, "host:café"},
		{"Multi-byte escaped quote", `count(kql='ü\'s')`, 4, "ü's"},
		{"Multi-byte identifier", "région.name", 0, "région.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenizer := NewTokenizer(tt.input)
			tokens, err := tokenizer.TokenizeAll()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.index >= len(tokens) {
				t.Fatalf("token index %d out of range (%d tokens)", tt.index, len(tokens))
			}
			if tokens[tt.index].Value != tt.expected {
				t.Errorf("expected value %q, got %q", tt.expected, tokens[tt.index].Value)
			}
		})
	}
}

func TestTokenizerErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Unterminated single quote", "sum(bytes, kql='status:200)"},
		{"Unterminated double quote", `count(kql="abc)`},
		{"Unrecognized character", "sum(bytes) # count()"},
		{"Bare exclamation mark", "!true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenizer := NewTokenizer(tt.input)
			_, err := tokenizer.TokenizeAll()
			if err == nil {
				t.Fatal("expected error, got none")
			}
			if err.Pos < 0 || err.Pos > len(tt.input) {
				t.Errorf("error position %d out of range", err.Pos)
			}
		})
	}
}

func TestTokenizerDeterministic(t *testing.T) {
	input := "moving_average(sum(bytes, kql='status:200'), window=5) / count()"

	first, err := NewTokenizer(input).TokenizeAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := NewTokenizer(input).TokenizeAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("token counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if *first[i] != *second[i] {
			t.Errorf("token %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestTokenizerPositions(t *testing.T) {
	input := "sum(bytes) + 1"
	tokens, err := NewTokenizer(input).TokenizeAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []int{0, 3, 4, 9, 11, 13, 14}
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d", len(expected), len(tokens))
	}
	for i, token := range tokens {
		if token.Pos != expected[i] {
			t.Errorf("token %d (%q): expected position %d, got %d", i, token.Value, expected[i], token.Pos)
		}
	}
}
