package tasklet

import (
	"math"
	"reflect"

	"github.com/wippyai/tasklet-runtime/code"
	"github.com/wippyai/tasklet-runtime/errors"
)

// truthy: nil, false, zero numbers and the empty string are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	}
	return true
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func add(a, b any) (any, error) {
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return x + y, nil
		}
	case string:
		if y, ok := b.(string); ok {
			return x + y, nil
		}
	}
	if x, ok := asFloat(a); ok {
		if y, ok := asFloat(b); ok {
			return x + y, nil
		}
	}
	return nil, operandError("+", a, b)
}

func less(a, b any) (any, error) {
	if x, ok := a.(int64); ok {
		if y, ok := b.(int64); ok {
			return x < y, nil
		}
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return x < y, nil
		}
	}
	if x, ok := asFloat(a); ok {
		if y, ok := asFloat(b); ok {
			return x < y, nil
		}
	}
	return nil, operandError("<", a, b)
}

func equal(a, b any) bool {
	if x, ok := asFloat(a); ok {
		if y, ok := asFloat(b); ok {
			if xi, ok := a.(int64); ok {
				if yi, ok := b.(int64); ok {
					return xi == yi
				}
			}
			return x == y && !math.IsNaN(x)
		}
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func operandError(op string, a, b any) error {
	return errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
		Detail("unsupported operands for %s: %s and %s", op, code.Repr(a), code.Repr(b)).
		Build()
}
