package builtin

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/wippyai/tasklet-runtime/code"
	"github.com/wippyai/tasklet-runtime/errors"
)

// RegisterCore adds the language-level builtins that need no provider:
// print, str, strip and len.
func RegisterCore(ns *Namespace, out io.Writer) error {
	funcs := []*Func{
		{Name: "print", Arity: Variadic, Call: func(_ context.Context, args []any) (any, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = Str(a)
			}
			_, err := fmt.Fprintln(out, strings.Join(parts, " "))
			return nil, err
		}},
		{Name: "str", Arity: 1, Call: func(_ context.Context, args []any) (any, error) {
			return Str(args[0]), nil
		}},
		{Name: "strip", Arity: 1, Call: func(_ context.Context, args []any) (any, error) {
			s, ok := args[0].(string)
			if !ok {
				return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
					Path("strip").
					Value(args[0]).
					Detail("%s is not a string", code.Repr(args[0])).
					Build()
			}
			return strings.TrimSpace(s), nil
		}},
		{Name: "len", Arity: 1, Call: func(_ context.Context, args []any) (any, error) {
			switch v := args[0].(type) {
			case string:
				return int64(len(v)), nil
			case []any:
				return int64(len(v)), nil
			}
			return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
				Path("len").
				Value(args[0]).
				Detail("%s has no length", code.Repr(args[0])).
				Build()
		}},
	}

	for _, f := range funcs {
		if err := ns.Add(f); err != nil {
			return errors.Registration("builtin "+f.Name, err)
		}
	}
	return nil
}

// Str converts a value to its printable form. Strings print unquoted.
func Str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return code.Repr(v)
}
