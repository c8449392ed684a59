package validate

import (
	"fmt"
	"regexp"

	"github.com/vbeck/go-formula/internal/kql"
	"github.com/vbeck/go-formula/internal/parser"
	"github.com/vbeck/go-formula/internal/registry"
)

// shiftPattern matches accepted time-shift values: a count with a
// unit (1h, 7d, 1w, 3M) or the keyword "previous".
var shiftPattern = regexp.MustCompile(`^(\d+(ms|s|m|h|d|w|M|y)|previous)$`)

// arityPass checks that every function call resolves in the registry,
// that its argument count is within bounds, that named arguments are
// known, and that kql/shift argument values are well-formed. KQL parse
// failures surface here as errors attached to the enclosing call node
// so that a single result reports issues across both grammars.
func (v *validator) arityPass(root parser.Node) {
	walkPaths(root, "$", func(n parser.Node, path string) {
		call, ok := n.(*parser.FunctionCall)
		if !ok {
			return
		}

		sig, ok := registry.Lookup(call.Name)
		if !ok {
			v.errorf(path, fmt.Sprintf("Unknown function: %s", call.Name), suggest(call.Name, registry.Names())...)
			return
		}

		if len(call.Args) < sig.MinArgs {
			v.errorf(path, fmt.Sprintf("Function %s requires at least %d argument%s, got %d",
				sig.Name, sig.MinArgs, plural(sig.MinArgs), len(call.Args)))
		}
		if len(call.Args) > sig.MaxArgs {
			v.errorf(path, fmt.Sprintf("Function %s requires at most %d argument%s, got %d",
				sig.Name, sig.MaxArgs, plural(sig.MaxArgs), len(call.Args)))
		}

		for _, key := range sortedKeys(call.NamedArgs) {
			if _, known := sig.NamedArgs[key]; !known {
				v.errorf(path, fmt.Sprintf("Unknown argument: %s", key), suggest(key, namedArgNames(sig))...)
				continue
			}
			switch key {
			case "kql":
				v.checkKqlArg(call, path)
			case "shift":
				v.checkShiftArg(call, path)
			}
		}
	})
}

func (v *validator) checkKqlArg(call *parser.FunctionCall, path string) {
	lit, ok := call.NamedArgs["kql"].(*parser.Literal)
	if !ok || lit.Kind != parser.LiteralString {
		// The type pass reports the mismatch.
		return
	}
	if _, err := kql.Parse(lit.Text); err != nil {
		v.errorf(path, fmt.Sprintf("Invalid KQL filter in %s(): %s", call.Name, err.Error()))
	}
}

func (v *validator) checkShiftArg(call *parser.FunctionCall, path string) {
	lit, ok := call.NamedArgs["shift"].(*parser.Literal)
	if !ok || lit.Kind != parser.LiteralString {
		return
	}
	if !shiftPattern.MatchString(lit.Text) {
		v.errorf(path, fmt.Sprintf("Invalid time shift: %q (expected a duration like '1w' or 'previous')", lit.Text))
	}
}

func namedArgNames(sig *registry.FunctionSignature) []string {
	names := make([]string, 0, len(sig.NamedArgs))
	for name := range sig.NamedArgs {
		names = append(names, name)
	}
	return names
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
