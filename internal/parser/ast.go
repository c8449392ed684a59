// Package parser turns formula token streams into an abstract syntax tree.
package parser

import (
	"sort"
	"strings"
)

// Node represents a node in the abstract syntax tree. Nodes are built
// once by the parser and never mutated afterwards; validation and
// compilation traverse the tree and produce separate structures.
type Node interface {
	astNode()
	// Pos returns the source position of the node.
	Pos() int
	// String renders the node in canonical form. It is used for error
	// messages and for duplicate-subexpression detection.
	String() string
}

// LiteralKind identifies the value type carried by a Literal node.
type LiteralKind int

const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralBool
)

// Literal represents a literal value.
type Literal struct {
	Kind LiteralKind
	// Number holds the parsed value for LiteralNumber.
	Number float64
	// Text holds the source text for LiteralNumber (exact rendering)
	// and the unquoted value for LiteralString.
	Text     string
	Bool     bool
	ValuePos int
}

func (l *Literal) astNode() {}
func (l *Literal) Pos() int { return l.ValuePos }

func (l *Literal) String() string {
	switch l.Kind {
	case LiteralString:
		return "'" + l.Text + "'"
	case LiteralBool:
		if l.Bool {
			return "true"
		}
		return "false"
	}
	return l.Text
}

// FieldRef represents a reference to a document field, possibly a
// dotted path such as cpu.load.pct.
type FieldRef struct {
	Path    string
	PathPos int
}

func (f *FieldRef) astNode()       {}
func (f *FieldRef) Pos() int       { return f.PathPos }
func (f *FieldRef) String() string { return f.Path }

// BinaryOp represents a binary expression (e.g. A + B, X AND Y).
type BinaryOp struct {
	Operator string
	OpPos    int
	Left     Node
	Right    Node
}

func (b *BinaryOp) astNode() {}
func (b *BinaryOp) Pos() int { return b.Left.Pos() }

func (b *BinaryOp) String() string {
	return "(" + b.Left.String() + " " + b.Operator + " " + b.Right.String() + ")"
}

// UnaryOp represents a unary expression (e.g. -X, NOT X).
type UnaryOp struct {
	Operator string
	OpPos    int
	Operand  Node
}

func (u *UnaryOp) astNode() {}
func (u *UnaryOp) Pos() int { return u.OpPos }

func (u *UnaryOp) String() string {
	if u.Operator == "NOT" {
		return "(NOT " + u.Operand.String() + ")"
	}
	return "(" + u.Operator + u.Operand.String() + ")"
}

// FunctionCall represents a function invocation with positional and
// named arguments, e.g. sum(bytes, kql='status:200').
type FunctionCall struct {
	Name      string
	NamePos   int
	Args      []Node
	NamedArgs map[string]Node
}

func (c *FunctionCall) astNode() {}
func (c *FunctionCall) Pos() int { return c.NamePos }

func (c *FunctionCall) String() string {
	var sb strings.Builder
	sb.WriteString(c.Name)
	sb.WriteByte('(')
	for i, arg := range c.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(arg.String())
	}
	// Named arguments render in sorted order so that the canonical
	// form is stable regardless of source order.
	keys := make([]string, 0, len(c.NamedArgs))
	for k := range c.NamedArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 || len(c.Args) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(c.NamedArgs[k].String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Walk traverses the tree rooted at node in depth-first pre-order,
// calling fn for each node. Named arguments are visited in sorted key
// order so traversal is deterministic.
func Walk(node Node, fn func(Node)) {
	if node == nil {
		return
	}
	fn(node)
	switch n := node.(type) {
	case *BinaryOp:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *UnaryOp:
		Walk(n.Operand, fn)
	case *FunctionCall:
		for _, arg := range n.Args {
			Walk(arg, fn)
		}
		keys := make([]string, 0, len(n.NamedArgs))
		for k := range n.NamedArgs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			Walk(n.NamedArgs[k], fn)
		}
	}
}

// Depth returns the maximum nesting depth of the tree rooted at node.
func Depth(node Node) int {
	switch n := node.(type) {
	case nil:
		return 0
	case *BinaryOp:
		return 1 + maxInt(Depth(n.Left), Depth(n.Right))
	case *UnaryOp:
		return 1 + Depth(n.Operand)
	case *FunctionCall:
		deepest := 0
		for _, arg := range n.Args {
			deepest = maxInt(deepest, Depth(arg))
		}
		for _, arg := range n.NamedArgs {
			deepest = maxInt(deepest, Depth(arg))
		}
		return 1 + deepest
	}
	return 1
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
