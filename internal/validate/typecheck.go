package validate

import (
	"fmt"
	"strconv"

	"github.com/vbeck/go-formula/internal/parser"
	"github.com/vbeck/go-formula/internal/registry"
)

// typePass infers a type for every node bottom-up and reports any
// operand/operator or argument/parameter conflict. Unknown (no schema
// information) is compatible with every type so that missing schemas
// never produce spurious mismatches.
func (v *validator) typePass(root parser.Node) {
	v.inferType(root, "$")
}

func (v *validator) inferType(node parser.Node, path string) registry.Type {
	switch n := node.(type) {
	case *parser.Literal:
		switch n.Kind {
		case parser.LiteralNumber:
			return registry.TypeNumber
		case parser.LiteralString:
			return registry.TypeString
		}
		return registry.TypeBoolean

	case *parser.FieldRef:
		if v.ctx.Schema == nil {
			return registry.TypeUnknown
		}
		field, ok := v.ctx.Schema.Lookup(n.Path)
		if !ok {
			// The schema pass reports the missing field.
			return registry.TypeUnknown
		}
		return fieldType(field.Type)

	case *parser.UnaryOp:
		operand := v.inferType(n.Operand, path+".operand")
		switch n.Operator {
		case "-":
			v.requireType(path, "-", operand, registry.TypeNumber)
			return registry.TypeNumber
		case "NOT":
			v.requireType(path, "NOT", operand, registry.TypeBoolean)
			return registry.TypeBoolean
		}
		return registry.TypeUnknown

	case *parser.BinaryOp:
		left := v.inferType(n.Left, path+".left")
		right := v.inferType(n.Right, path+".right")

		switch n.Operator {
		case "+", "-", "*", "/":
			v.requireOperands(path, n.Operator, left, right, registry.TypeNumber)
			return registry.TypeNumber
		case ">", ">=", "<", "<=", "==", "!=":
			v.requireOperands(path, n.Operator, left, right, registry.TypeNumber)
			return registry.TypeBoolean
		case "AND", "OR":
			v.requireOperands(path, n.Operator, left, right, registry.TypeBoolean)
			return registry.TypeBoolean
		}
		return registry.TypeUnknown

	case *parser.FunctionCall:
		sig, ok := registry.Lookup(n.Name)
		if !ok {
			// The arity pass reports the unknown function; still infer
			// argument types so nested issues surface.
			for i, arg := range n.Args {
				v.inferType(arg, path+".args["+strconv.Itoa(i)+"]")
			}
			return registry.TypeUnknown
		}

		for i, arg := range n.Args {
			argPath := path + ".args[" + strconv.Itoa(i) + "]"
			got := v.inferType(arg, argPath)
			if i >= len(sig.Positional) {
				continue // arity pass reports the excess argument
			}
			want := sig.Positional[i]
			if !compatible(got, want) {
				v.errorf(argPath, fmt.Sprintf("Type mismatch: argument %d of %s() is %s, expected %s",
					i+1, sig.Name, got, want))
			}
		}

		for _, key := range sortedKeys(n.NamedArgs) {
			argPath := path + ".named[" + key + "]"
			got := v.inferType(n.NamedArgs[key], argPath)
			want, known := sig.NamedArgs[key]
			if !known {
				continue // arity pass reports the unknown argument
			}
			if !compatible(got, want) {
				v.errorf(argPath, fmt.Sprintf("Type mismatch: argument %s of %s() is %s, expected %s",
					key, sig.Name, got, want))
			}
		}

		return sig.ReturnType
	}

	return registry.TypeUnknown
}

func (v *validator) requireType(path, operator string, got, want registry.Type) {
	if !compatible(got, want) {
		v.errorf(path, fmt.Sprintf("Type mismatch: operator %q requires %s, got %s", operator, want, got))
	}
}

func (v *validator) requireOperands(path, operator string, left, right, want registry.Type) {
	if !compatible(left, want) || !compatible(right, want) {
		v.errorf(path, fmt.Sprintf("Type mismatch: operator %q requires %s operands, got %s and %s",
			operator, want, left, right))
	}
}

// compatible reports whether an inferred type satisfies an expected
// one. Unknown is compatible in both directions.
func compatible(got, want registry.Type) bool {
	return got == registry.TypeUnknown || want == registry.TypeUnknown || got == want
}

// fieldType maps data-view field type names to expression types.
func fieldType(name string) registry.Type {
	switch name {
	case "number", "date", "histogram":
		return registry.TypeNumber
	case "string", "keyword", "text", "ip":
		return registry.TypeString
	case "boolean":
		return registry.TypeBoolean
	}
	return registry.TypeUnknown
}
