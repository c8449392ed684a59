// Package kql parses the filter mini-language used inside kql='...'
// arguments: field:value clauses with wildcard values, AND/OR/NOT
// combinators, parentheses and numeric range comparisons
// (field >= 10). The resulting clause tree is independent of the main
// formula grammar; the query compiler lowers it into document-store
// filter syntax.
package kql

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Clause is a node in the filter clause tree.
type Clause interface {
	clause()
	String() string
}

// Match matches a field against a value, optionally with wildcards.
type Match struct {
	Field    string
	Value    string
	Wildcard bool
}

func (m *Match) clause() {}
func (m *Match) String() string {
	return m.Field + ":" + m.Value
}

// Range compares a field against a value with one of > >= < <=.
type Range struct {
	Field    string
	Operator string
	Value    string
}

func (r *Range) clause() {}
func (r *Range) String() string {
	return r.Field + " " + r.Operator + " " + r.Value
}

// And combines clauses that must all match.
type And struct {
	Clauses []Clause
}

func (a *And) clause() {}
func (a *And) String() string {
	parts := make([]string, len(a.Clauses))
	for i, c := range a.Clauses {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

// Or combines clauses of which at least one must match.
type Or struct {
	Clauses []Clause
}

func (o *Or) clause() {}
func (o *Or) String() string {
	parts := make([]string, len(o.Clauses))
	for i, c := range o.Clauses {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// Not negates a clause.
type Not struct {
	Inner Clause
}

func (n *Not) clause() {}
func (n *Not) String() string {
	return "NOT " + n.Inner.String()
}

// Error reports a malformed filter string with its position inside
// that string.
type Error struct {
	Pos     int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid filter: %s at position %d", e.Message, e.Pos)
}

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenWord
	tokenString
	tokenColon
	tokenLParen
	tokenRParen
	tokenCompare
	tokenAnd
	tokenOr
	tokenNot
)

type token struct {
	typ   tokenType
	value string
	pos   int
}

func tokenize(input string) ([]token, *Error) {
	var tokens []token
	pos := 0

	for pos < len(input) {
		ch, _ := utf8.DecodeRuneInString(input[pos:])

		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			pos++

		case ch == ':':
			tokens = append(tokens, token{tokenColon, ":", pos})
			pos++

		case ch == '(':
			tokens = append(tokens, token{tokenLParen, "(", pos})
			pos++

		case ch == ')':
			tokens = append(tokens, token{tokenRParen, ")", pos})
			pos++

		case ch == '>' || ch == '<':
			op := string(ch)
			if pos+1 < len(input) && input[pos+1] == '=' {
				op += "="
			}
			tokens = append(tokens, token{tokenCompare, op, pos})
			pos += len(op)

		case ch == '"' || ch == '\'':
			quote := byte(ch)
			end := pos + 1
			for end < len(input) && input[end] != quote {
				end++
			}
			if end >= len(input) {
				return nil, &Error{Pos: pos, Message: "unterminated quoted value"}
			}
			tokens = append(tokens, token{tokenString, input[pos+1 : end], pos})
			pos = end + 1

		case isWordRune(ch):
			end := pos
			for end < len(input) {
				r, w := utf8.DecodeRuneInString(input[end:])
				if !isWordRune(r) {
					break
				}
				end += w
			}
			word := input[pos:end]
			switch strings.ToUpper(word) {
			case "AND":
				tokens = append(tokens, token{tokenAnd, word, pos})
			case "OR":
				tokens = append(tokens, token{tokenOr, word, pos})
			case "NOT":
				tokens = append(tokens, token{tokenNot, word, pos})
			default:
				tokens = append(tokens, token{tokenWord, word, pos})
			}
			pos = end

		default:
			return nil, &Error{Pos: pos, Message: fmt.Sprintf("unexpected character %q", ch)}
		}
	}

	tokens = append(tokens, token{tokenEOF, "", pos})
	return tokens, nil
}

// isWordRune reports whether ch may appear in a bare field name or
// value. Wildcards, dots, dashes, slashes and at-signs are allowed so
// that values like web-*.example.org work unquoted.
func isWordRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) ||
		ch == '_' || ch == '.' || ch == '-' || ch == '*' || ch == '/' || ch == '@' || ch == '+'
}

type parser struct {
	tokens  []token
	current int
}

func (p *parser) currentToken() token {
	if p.current >= len(p.tokens) {
		return token{typ: tokenEOF}
	}
	return p.tokens[p.current]
}

func (p *parser) advance() token {
	t := p.currentToken()
	if p.current < len(p.tokens)-1 {
		p.current++
	}
	return t
}

// Parse parses a KQL filter string into a clause tree.
func Parse(input string) (Clause, *Error) {
	if strings.TrimSpace(input) == "" {
		return nil, &Error{Pos: 0, Message: "empty filter"}
	}

	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	clause, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if tok := p.currentToken(); tok.typ != tokenEOF {
		return nil, &Error{Pos: tok.pos, Message: fmt.Sprintf("unexpected %q after filter", tok.value)}
	}

	return clause, nil
}

func (p *parser) parseOr() (Clause, *Error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	clauses := []Clause{left}
	for p.currentToken().typ == tokenOr {
		p.advance()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, next)
	}

	if len(clauses) == 1 {
		return left, nil
	}
	return &Or{Clauses: clauses}, nil
}

func (p *parser) parseAnd() (Clause, *Error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	clauses := []Clause{left}
	for p.currentToken().typ == tokenAnd {
		p.advance()
		next, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, next)
	}

	if len(clauses) == 1 {
		return left, nil
	}
	return &And{Clauses: clauses}, nil
}

func (p *parser) parseNot() (Clause, *Error) {
	if p.currentToken().typ == tokenNot {
		p.advance()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Clause, *Error) {
	tok := p.currentToken()

	if tok.typ == tokenLParen {
		p.advance()
		clause, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.currentToken(); closing.typ != tokenRParen {
			return nil, &Error{Pos: closing.pos, Message: "missing closing parenthesis"}
		}
		p.advance()
		return clause, nil
	}

	if tok.typ != tokenWord {
		return nil, &Error{Pos: tok.pos, Message: fmt.Sprintf("expected field name, found %q", tok.value)}
	}
	field := p.advance()

	switch next := p.currentToken(); next.typ {
	case tokenColon:
		p.advance()
		value := p.currentToken()
		if value.typ != tokenWord && value.typ != tokenString {
			return nil, &Error{Pos: value.pos, Message: "expected value after ':'"}
		}
		p.advance()
		return &Match{
			Field:    field.value,
			Value:    value.value,
			Wildcard: value.typ == tokenWord && strings.Contains(value.value, "*"),
		}, nil

	case tokenCompare:
		op := p.advance()
		value := p.currentToken()
		if value.typ != tokenWord && value.typ != tokenString {
			return nil, &Error{Pos: value.pos, Message: fmt.Sprintf("expected value after %q", op.value)}
		}
		p.advance()
		return &Range{Field: field.value, Operator: op.value, Value: value.value}, nil
	}

	return nil, &Error{Pos: p.currentToken().pos, Message: fmt.Sprintf("expected ':' or comparison after field %q", field.value)}
}
