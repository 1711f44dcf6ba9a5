package code

import "fmt"

// Op is an instruction opcode.
type Op uint8

const (
	OpNop Op = iota
	OpLoadConst
	OpLoadLocal
	OpStoreLocal
	OpLoadBuiltin
	OpCall
	OpReturn
	OpPop
	OpDup
	OpJump
	OpJumpIfFalse
	OpSetupExcept
	OpPopBlock
	OpRaise
	OpYield
	OpAdd
	OpLess
	OpEqual
	opCount
)

var opNames = [opCount]string{
	OpNop:         "NOP",
	OpLoadConst:   "LOAD_CONST",
	OpLoadLocal:   "LOAD_LOCAL",
	OpStoreLocal:  "STORE_LOCAL",
	OpLoadBuiltin: "LOAD_BUILTIN",
	OpCall:        "CALL",
	OpReturn:      "RETURN",
	OpPop:         "POP",
	OpDup:         "DUP",
	OpJump:        "JUMP",
	OpJumpIfFalse: "JUMP_IF_FALSE",
	OpSetupExcept: "SETUP_EXCEPT",
	OpPopBlock:    "POP_BLOCK",
	OpRaise:       "RAISE",
	OpYield:       "YIELD",
	OpAdd:         "ADD",
	OpLess:        "LESS",
	OpEqual:       "EQUAL",
}

var opByName = func() map[string]Op {
	m := make(map[string]Op, opCount)
	for op, name := range opNames {
		m[name] = Op(op)
	}
	return m
}()

func (o Op) String() string {
	if o < opCount {
		return opNames[o]
	}
	return fmt.Sprintf("OP(%d)", uint8(o))
}

// ParseOp returns the opcode with the given mnemonic.
func ParseOp(name string) (Op, bool) {
	op, ok := opByName[name]
	return op, ok
}

// HasArg reports whether the opcode uses its Arg operand.
func (o Op) HasArg() bool {
	switch o {
	case OpLoadConst, OpLoadLocal, OpStoreLocal, OpLoadBuiltin, OpCall,
		OpJump, OpJumpIfFalse, OpSetupExcept:
		return true
	}
	return false
}

// IsJump reports whether Arg is an instruction index.
func (o Op) IsJump() bool {
	return o == OpJump || o == OpJumpIfFalse || o == OpSetupExcept
}

// Instr is a single instruction.
type Instr struct {
	Op  Op
	Arg int
}

func (i Instr) String() string {
	if i.Op.HasArg() {
		return fmt.Sprintf("%s %d", i.Op, i.Arg)
	}
	return i.Op.String()
}
