package code

import (
	"fmt"

	"github.com/wippyai/tasklet-runtime/errors"
)

// Callable is a compiled unit of interpreted code.
//
// Locals holds the number of local slots; the first Arity slots receive the
// call arguments. Consts may contain other *Callable values, which is how one
// callable refers to another.
type Callable struct {
	Name   string
	Consts []any
	Names  []string
	Code   []Instr
	Arity  int
	Locals int
}

func (c *Callable) String() string {
	return fmt.Sprintf("<callable %s/%d>", c.Name, c.Arity)
}

// Validate checks operand ranges so the interpreter can index without bounds
// failures.
func (c *Callable) Validate() error {
	if c == nil {
		return errors.InvalidInput(errors.PhaseLoad, "nil callable")
	}
	if c.Arity < 0 {
		return c.invalid(-1, "negative arity %d", c.Arity)
	}
	if c.Locals < c.Arity {
		return c.invalid(-1, "locals %d smaller than arity %d", c.Locals, c.Arity)
	}

	for pc, in := range c.Code {
		switch in.Op {
		case OpLoadConst:
			if in.Arg < 0 || in.Arg >= len(c.Consts) {
				return c.invalid(pc, "const index %d out of range", in.Arg)
			}
		case OpLoadLocal, OpStoreLocal:
			if in.Arg < 0 || in.Arg >= c.Locals {
				return c.invalid(pc, "local index %d out of range", in.Arg)
			}
		case OpLoadBuiltin:
			if in.Arg < 0 || in.Arg >= len(c.Names) {
				return c.invalid(pc, "name index %d out of range", in.Arg)
			}
		case OpCall:
			if in.Arg < 0 {
				return c.invalid(pc, "negative argument count %d", in.Arg)
			}
		case OpJump, OpJumpIfFalse, OpSetupExcept:
			// A target of len(Code) is the implicit return at the end.
			if in.Arg < 0 || in.Arg > len(c.Code) {
				return c.invalid(pc, "jump target %d out of range", in.Arg)
			}
		default:
			if in.Op >= opCount {
				return c.invalid(pc, "unknown opcode %d", uint8(in.Op))
			}
		}
	}
	return nil
}

func (c *Callable) invalid(pc int, format string, args ...any) error {
	b := errors.New(errors.PhaseLoad, errors.KindInvalidInput).
		Detail(format, args...)
	if pc >= 0 {
		b.Path(c.Name, fmt.Sprintf("%d", pc))
	} else {
		b.Path(c.Name)
	}
	return b.Build()
}
