// Package lexer converts formula source text into a token stream.
//
// The formula language recognizes dotted identifiers (cpu.load.pct),
// single- or double-quoted string literals with backslash escaping,
// decimal numbers with optional fraction and exponent, the operators
// + - * / > >= < <= == != AND OR NOT, parentheses, commas and the
// bare '=' used for named arguments.
package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdentifier
	TokenString
	TokenNumber
	TokenOperator
	TokenLParen
	TokenRParen
	TokenComma
	TokenEquals
)

// String returns a human-readable name for the token type.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of formula"
	case TokenIdentifier:
		return "identifier"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenOperator:
		return "operator"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	case TokenComma:
		return "','"
	case TokenEquals:
		return "'='"
	}
	return "unknown"
}

// Token represents a single token in a formula expression.
// Tokens are immutable once produced.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// Error reports a lexing failure with its source position.
type Error struct {
	Pos     int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at position %d", e.Message, e.Pos)
}

// Tokenizer scans formula source text left to right. Positions are
// byte offsets; multi-byte UTF-8 characters are decoded as single
// runes.
type Tokenizer struct {
	input string
	pos   int
	ch    rune
	width int
}

// NewTokenizer creates a new tokenizer for the given formula text.
func NewTokenizer(input string) *Tokenizer {
	t := &Tokenizer{input: input}
	if len(input) > 0 {
		t.ch, t.width = utf8.DecodeRuneInString(input)
	}
	return t
}

// advance moves to the next character.
func (t *Tokenizer) advance() {
	t.pos += t.width
	if t.pos >= len(t.input) {
		t.ch = 0 // EOF
		t.width = 0
	} else {
		t.ch, t.width = utf8.DecodeRuneInString(t.input[t.pos:])
	}
}

// peek looks ahead without advancing.
func (t *Tokenizer) peek() rune {
	if t.pos+t.width >= len(t.input) {
		return 0
	}
	ch, _ := utf8.DecodeRuneInString(t.input[t.pos+t.width:])
	return ch
}

// skipWhitespace skips whitespace characters.
func (t *Tokenizer) skipWhitespace() {
	for t.ch == ' ' || t.ch == '\t' || t.ch == '\n' || t.ch == '\r' {
		t.advance()
	}
}

// readString reads a quoted string, handling backslash escapes.
// Returns an error for unterminated strings.
func (t *Tokenizer) readString() (string, *Error) {
	quote := t.ch
	start := t.pos
	t.advance() // skip opening quote

	var result strings.Builder
	for t.ch != 0 && t.ch != quote {
		if t.ch == '\\' && (t.peek() == quote || t.peek() == '\\') {
			t.advance()
			result.WriteRune(t.ch)
		} else {
			result.WriteRune(t.ch)
		}
		t.advance()
	}

	if t.ch != quote {
		return "", &Error{Pos: start, Message: "unterminated string literal"}
	}
	t.advance() // skip closing quote

	return result.String(), nil
}

// readNumber reads a number with optional fraction and exponent.
func (t *Tokenizer) readNumber() string {
	var result strings.Builder

	for unicode.IsDigit(t.ch) {
		result.WriteRune(t.ch)
		t.advance()
	}

	if t.ch == '.' && unicode.IsDigit(t.peek()) {
		result.WriteRune(t.ch)
		t.advance()
		for unicode.IsDigit(t.ch) {
			result.WriteRune(t.ch)
			t.advance()
		}
	}

	if t.ch == 'e' || t.ch == 'E' {
		next := t.peek()
		if unicode.IsDigit(next) || next == '+' || next == '-' {
			result.WriteRune(t.ch)
			t.advance()
			if t.ch == '+' || t.ch == '-' {
				result.WriteRune(t.ch)
				t.advance()
			}
			for unicode.IsDigit(t.ch) {
				result.WriteRune(t.ch)
				t.advance()
			}
		}
	}

	return result.String()
}

// readIdentifier reads an identifier, allowing dotted paths such as
// cpu.load.pct. A trailing dot is not consumed.
func (t *Tokenizer) readIdentifier() string {
	var result strings.Builder

	for t.ch != 0 && (unicode.IsLetter(t.ch) || unicode.IsDigit(t.ch) || t.ch == '_') {
		result.WriteRune(t.ch)
		t.advance()
		if t.ch == '.' {
			next := t.peek()
			if unicode.IsLetter(next) || unicode.IsDigit(next) || next == '_' {
				result.WriteRune(t.ch)
				t.advance()
			}
		}
	}

	return result.String()
}

// NextToken returns the next token.
func (t *Tokenizer) NextToken() (*Token, *Error) {
	t.skipWhitespace()

	if t.ch == 0 {
		return &Token{Type: TokenEOF, Pos: t.pos}, nil
	}

	pos := t.pos

	if t.ch == '\'' || t.ch == '"' {
		value, err := t.readString()
		if err != nil {
			return nil, err
		}
		return &Token{Type: TokenString, Value: value, Pos: pos}, nil
	}

	if unicode.IsDigit(t.ch) {
		value := t.readNumber()
		return &Token{Type: TokenNumber, Value: value, Pos: pos}, nil
	}

	if token := t.tokenizeSpecialChar(pos); token != nil {
		return token, nil
	}

	if unicode.IsLetter(t.ch) || t.ch == '_' {
		value := t.readIdentifier()
		if op := classifyWordOperator(value); op != "" {
			return &Token{Type: TokenOperator, Value: op, Pos: pos}, nil
		}
		return &Token{Type: TokenIdentifier, Value: value, Pos: pos}, nil
	}

	return nil, &Error{Pos: pos, Message: fmt.Sprintf("unexpected character %q", t.ch)}
}

// tokenizeSpecialChar tokenizes punctuation and symbolic operators.
func (t *Tokenizer) tokenizeSpecialChar(pos int) *Token {
	switch t.ch {
	case '(':
		t.advance()
		return &Token{Type: TokenLParen, Value: "(", Pos: pos}
	case ')':
		t.advance()
		return &Token{Type: TokenRParen, Value: ")", Pos: pos}
	case ',':
		t.advance()
		return &Token{Type: TokenComma, Value: ",", Pos: pos}
	case '+', '-', '*', '/':
		op := string(t.ch)
		t.advance()
		return &Token{Type: TokenOperator, Value: op, Pos: pos}
	case '>', '<':
		op := string(t.ch)
		if t.peek() == '=' {
			t.advance()
			op += "="
		}
		t.advance()
		return &Token{Type: TokenOperator, Value: op, Pos: pos}
	case '=':
		if t.peek() == '=' {
			t.advance()
			t.advance()
			return &Token{Type: TokenOperator, Value: "==", Pos: pos}
		}
		t.advance()
		return &Token{Type: TokenEquals, Value: "=", Pos: pos}
	case '!':
		if t.peek() == '=' {
			t.advance()
			t.advance()
			return &Token{Type: TokenOperator, Value: "!=", Pos: pos}
		}
	}
	return nil
}

// classifyWordOperator maps the word operators AND, OR and NOT
// (case-insensitive) to their canonical form. Returns "" for
// ordinary identifiers.
func classifyWordOperator(word string) string {
	switch strings.ToUpper(word) {
	case "AND":
		return "AND"
	case "OR":
		return "OR"
	case "NOT":
		return "NOT"
	}
	return ""
}

// TokenizeAll returns all tokens from the input, ending with an EOF
// token. Identical input always yields an identical token stream.
func (t *Tokenizer) TokenizeAll() ([]*Token, *Error) {
	var tokens []*Token

	for {
		token, err := t.NextToken()
		if err != nil {
			return nil, err
		}

		tokens = append(tokens, token)

		if token.Type == TokenEOF {
			break
		}
	}

	return tokens, nil
}
