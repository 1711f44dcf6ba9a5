package code

import (
	"fmt"
	"strconv"
	"strings"
)

// Disassemble renders the instructions of c around pc, radius instructions
// on each side. A negative radius renders the whole callable; a negative pc
// renders no cursor marker.
func Disassemble(c *Callable, pc, radius int) string {
	start, end := 0, len(c.Code)
	if radius >= 0 && pc >= 0 {
		start = max(0, pc-radius)
		end = min(len(c.Code), pc+radius+1)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		in := c.Code[i]
		marker := "   "
		if i == pc {
			marker = "-->"
		}
		fmt.Fprintf(&b, "%s %4d %-14s", marker, i, in.Op)
		if in.Op.HasArg() {
			fmt.Fprintf(&b, " %4d", in.Arg)
			if note := annotate(c, in); note != "" {
				fmt.Fprintf(&b, " (%s)", note)
			}
		}
		b.WriteByte('\n')
	}
	if pc >= len(c.Code) {
		fmt.Fprintf(&b, "--> %4d <end>\n", pc)
	}
	return b.String()
}

func annotate(c *Callable, in Instr) string {
	switch in.Op {
	case OpLoadConst:
		if in.Arg >= 0 && in.Arg < len(c.Consts) {
			return Repr(c.Consts[in.Arg])
		}
	case OpLoadBuiltin:
		if in.Arg >= 0 && in.Arg < len(c.Names) {
			return c.Names[in.Arg]
		}
	case OpJump, OpJumpIfFalse, OpSetupExcept:
		return "to " + strconv.Itoa(in.Arg)
	}
	return ""
}

// Repr formats an interpreter value for display.
func Repr(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = Repr(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case error:
		return "<failure: " + x.Error() + ">"
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}
