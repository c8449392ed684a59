package parser

import (
	"fmt"
	"strconv"

	"github.com/vbeck/go-formula/internal/lexer"
)

// maxParseErrors bounds how many errors a single pass reports.
const maxParseErrors = 10

// maxNestingDepth bounds expression nesting so that adversarial input
// cannot exhaust the goroutine stack through recursive descent.
const maxNestingDepth = 500

// ParseError reports a structural parse failure with its source
// position. A parse produces one or more of these, never a partial
// tree.
type ParseError struct {
	Pos      int
	Expected string
	Found    string
	Message  string
}

func (e *ParseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s at position %d", e.Message, e.Pos)
	}
	return fmt.Sprintf("expected %s, found %s at position %d", e.Expected, e.Found, e.Pos)
}

// ParseSource tokenizes and parses a formula in one step. Tokenizer
// errors are reported through the same ParseError list as structural
// errors.
func ParseSource(source string) Result {
	tokens, lexErr := lexer.NewTokenizer(source).TokenizeAll()
	if lexErr != nil {
		return Result{Errors: []*ParseError{{Pos: lexErr.Pos, Message: lexErr.Message}}}
	}
	node, errs := NewParser(tokens).Parse()
	if len(errs) > 0 {
		return Result{Errors: errs}
	}
	return Result{Node: node}
}

// Parser parses formula token streams into an AST.
type Parser struct {
	tokens  []*lexer.Token
	current int
	depth   int
	errors  []*ParseError
}

// NewParser creates a new parser over the given tokens.
func NewParser(tokens []*lexer.Token) *Parser {
	return &Parser{
		tokens:  tokens,
		current: 0,
	}
}

// currentToken returns the current token.
func (p *Parser) currentToken() *lexer.Token {
	if p.current >= len(p.tokens) {
		return &lexer.Token{Type: lexer.TokenEOF}
	}
	return p.tokens[p.current]
}

// peekToken looks one token ahead without advancing.
func (p *Parser) peekToken() *lexer.Token {
	if p.current+1 >= len(p.tokens) {
		return &lexer.Token{Type: lexer.TokenEOF}
	}
	return p.tokens[p.current+1]
}

// advance moves to the next token.
func (p *Parser) advance() *lexer.Token {
	token := p.currentToken()
	if p.current < len(p.tokens)-1 {
		p.current++
	}
	return token
}

// expect checks that the current token matches and advances.
func (p *Parser) expect(tokenType lexer.TokenType) *ParseError {
	token := p.currentToken()
	if token.Type != tokenType {
		return &ParseError{
			Pos:      token.Pos,
			Expected: tokenType.String(),
			Found:    describeToken(token),
		}
	}
	p.advance()
	return nil
}

func describeToken(token *lexer.Token) string {
	if token.Type == lexer.TokenEOF {
		return "end of formula"
	}
	return fmt.Sprintf("%q", token.Value)
}

// Parse parses the tokens into an AST. On failure, all errors found in
// this pass are returned together; single-token recovery is used only
// to surface additional errors, never to produce a partial tree.
func (p *Parser) Parse() (Node, []*ParseError) {
	node, err := p.parseOr()
	if err == nil && p.currentToken().Type == lexer.TokenEOF {
		return node, nil
	}

	if err != nil {
		p.errors = append(p.errors, err)
	} else {
		token := p.currentToken()
		p.errors = append(p.errors, &ParseError{
			Pos:      token.Pos,
			Expected: "end of formula",
			Found:    describeToken(token),
		})
	}

	for len(p.errors) < maxParseErrors && p.currentToken().Type != lexer.TokenEOF {
		p.advance()
		if p.currentToken().Type == lexer.TokenEOF {
			break
		}
		if _, err := p.parseOr(); err != nil {
			p.errors = append(p.errors, err)
		}
	}

	return nil, p.errors
}

// enterExpr tracks recursion depth for every nested expression entry
// point. It must be paired with leaveExpr on the same path.
func (p *Parser) enterExpr() *ParseError {
	if p.depth >= maxNestingDepth {
		return &ParseError{
			Pos:     p.currentToken().Pos,
			Message: fmt.Sprintf("formula is nested more than %d levels deep", maxNestingDepth),
		}
	}
	p.depth++
	return nil
}

func (p *Parser) leaveExpr() {
	p.depth--
}

// parseOr handles OR expressions (lowest precedence).
func (p *Parser) parseOr() (Node, *ParseError) {
	if err := p.enterExpr(); err != nil {
		return nil, err
	}
	defer p.leaveExpr()

	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.isOperator("OR") {
		op := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Left: left, Operator: op.Value, OpPos: op.Pos, Right: right}
	}

	return left, nil
}

// parseAnd handles AND expressions.
func (p *Parser) parseAnd() (Node, *ParseError) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	for p.isOperator("AND") {
		op := p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Left: left, Operator: op.Value, OpPos: op.Pos, Right: right}
	}

	return left, nil
}

// parseComparison handles comparison expressions.
func (p *Parser) parseComparison() (Node, *ParseError) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	if p.isOperator(">", ">=", "<", "<=", "==", "!=") {
		op := p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Left: left, Operator: op.Value, OpPos: op.Pos, Right: right}, nil
	}

	return left, nil
}

// parseAdditive handles addition and subtraction.
func (p *Parser) parseAdditive() (Node, *ParseError) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}

	for p.isOperator("+", "-") {
		op := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Left: left, Operator: op.Value, OpPos: op.Pos, Right: right}
	}

	return left, nil
}

// parseMultiplicative handles multiplication and division.
func (p *Parser) parseMultiplicative() (Node, *ParseError) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.isOperator("*", "/") {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Left: left, Operator: op.Value, OpPos: op.Pos, Right: right}
	}

	return left, nil
}

// parseUnary handles unary minus and NOT.
func (p *Parser) parseUnary() (Node, *ParseError) {
	if p.isOperator("-", "NOT") {
		op := p.advance()
		if err := p.enterExpr(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		p.leaveExpr()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Operator: op.Value, OpPos: op.Pos, Operand: operand}, nil
	}

	return p.parsePrimary()
}

// parsePrimary handles literals, field references, function calls and
// grouped expressions.
func (p *Parser) parsePrimary() (Node, *ParseError) {
	token := p.currentToken()

	switch token.Type {
	case lexer.TokenLParen:
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(lexer.TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil

	case lexer.TokenNumber:
		p.advance()
		value, parseErr := strconv.ParseFloat(token.Value, 64)
		if parseErr != nil {
			return nil, &ParseError{
				Pos:     token.Pos,
				Message: fmt.Sprintf("invalid number %q", token.Value),
			}
		}
		return &Literal{Kind: LiteralNumber, Number: value, Text: token.Value, ValuePos: token.Pos}, nil

	case lexer.TokenString:
		p.advance()
		return &Literal{Kind: LiteralString, Text: token.Value, ValuePos: token.Pos}, nil

	case lexer.TokenIdentifier:
		return p.parseIdentifier()
	}

	return nil, &ParseError{
		Pos:      token.Pos,
		Expected: "expression",
		Found:    describeToken(token),
	}
}

// parseIdentifier parses a boolean literal, field reference or
// function call.
func (p *Parser) parseIdentifier() (Node, *ParseError) {
	token := p.advance()

	switch token.Value {
	case "true", "false":
		return &Literal{Kind: LiteralBool, Bool: token.Value == "true", ValuePos: token.Pos}, nil
	}

	if p.currentToken().Type == lexer.TokenLParen {
		return p.parseFunctionCall(token)
	}

	return &FieldRef{Path: token.Value, PathPos: token.Pos}, nil
}

// parseFunctionCall parses name '(' [arg (',' arg)*] ')'. Each arg is
// positional or named (ident '=' expr); positional arguments may not
// follow named ones.
func (p *Parser) parseFunctionCall(name *lexer.Token) (Node, *ParseError) {
	p.advance() // consume '('

	call := &FunctionCall{Name: name.Value, NamePos: name.Pos}

	if p.currentToken().Type != lexer.TokenRParen {
		sawNamed := false
		for {
			if p.currentToken().Type == lexer.TokenIdentifier && p.peekToken().Type == lexer.TokenEquals {
				key := p.advance()
				p.advance() // consume '='
				value, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				if call.NamedArgs == nil {
					call.NamedArgs = make(map[string]Node)
				}
				if _, dup := call.NamedArgs[key.Value]; dup {
					return nil, &ParseError{
						Pos:     key.Pos,
						Message: fmt.Sprintf("duplicate argument %q", key.Value),
					}
				}
				call.NamedArgs[key.Value] = value
				sawNamed = true
			} else {
				argPos := p.currentToken().Pos
				arg, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				if sawNamed {
					return nil, &ParseError{
						Pos:     argPos,
						Message: "positional argument after named argument",
					}
				}
				call.Args = append(call.Args, arg)
			}

			if p.currentToken().Type == lexer.TokenComma {
				p.advance()
			} else {
				break
			}
		}
	}

	if err := p.expect(lexer.TokenRParen); err != nil {
		return nil, err
	}

	return call, nil
}

// isOperator reports whether the current token is an operator with one
// of the given values.
func (p *Parser) isOperator(values ...string) bool {
	token := p.currentToken()
	if token.Type != lexer.TokenOperator {
		return false
	}
	for _, v := range values {
		if token.Value == v {
			return true
		}
	}
	return false
}
