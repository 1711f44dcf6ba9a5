package code

import (
	"fmt"
	"math"

	"github.com/wippyai/tasklet-runtime/errors"
)

// Builder assembles a Callable with symbolic jump labels.
type Builder struct {
	labels map[string]int
	fixups []fixup
	names  map[string]int
	c      Callable
}

type fixup struct {
	label string
	pc    int
}

// NewBuilder starts a callable with the given name and arity.
func NewBuilder(name string, arity int) *Builder {
	return &Builder{
		c:      Callable{Name: name, Arity: arity, Locals: arity},
		labels: make(map[string]int),
		names:  make(map[string]int),
	}
}

// Locals sets the number of local slots. Values below the arity are ignored.
func (b *Builder) Locals(n int) *Builder {
	if n > b.c.Locals {
		b.c.Locals = n
	}
	return b
}

// Const appends v to the constant pool and returns its index.
// Go ints are normalized to int64.
func (b *Builder) Const(v any) int {
	b.c.Consts = append(b.c.Consts, Normalize(v))
	return len(b.c.Consts) - 1
}

// Name interns a builtin name and returns its index.
func (b *Builder) Name(name string) int {
	if idx, ok := b.names[name]; ok {
		return idx
	}
	b.c.Names = append(b.c.Names, name)
	idx := len(b.c.Names) - 1
	b.names[name] = idx
	return idx
}

// Emit appends an instruction.
func (b *Builder) Emit(op Op, arg int) *Builder {
	b.c.Code = append(b.c.Code, Instr{Op: op, Arg: arg})
	return b
}

// Label marks the next instruction position.
func (b *Builder) Label(name string) *Builder {
	b.labels[name] = len(b.c.Code)
	return b
}

// EmitJump appends a jump-family instruction targeting a label resolved at Build.
func (b *Builder) EmitJump(op Op, label string) *Builder {
	b.fixups = append(b.fixups, fixup{label: label, pc: len(b.c.Code)})
	return b.Emit(op, -1)
}

func (b *Builder) LoadConst(v any) *Builder {
	return b.Emit(OpLoadConst, b.Const(v))
}

func (b *Builder) LoadBuiltin(name string) *Builder {
	return b.Emit(OpLoadBuiltin, b.Name(name))
}

func (b *Builder) LoadLocal(i int) *Builder {
	return b.Locals(i+1).Emit(OpLoadLocal, i)
}

func (b *Builder) StoreLocal(i int) *Builder {
	return b.Locals(i+1).Emit(OpStoreLocal, i)
}

func (b *Builder) Call(n int) *Builder {
	return b.Emit(OpCall, n)
}

// Op appends an instruction without an operand.
func (b *Builder) Op(op Op) *Builder {
	return b.Emit(op, 0)
}

// Build resolves labels and validates the callable.
func (b *Builder) Build() (*Callable, error) {
	for _, f := range b.fixups {
		target, ok := b.labels[f.label]
		if !ok {
			return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
				Path(b.c.Name, fmt.Sprintf("%d", f.pc)).
				Detail("undefined label %q", f.label).
				Build()
		}
		b.c.Code[f.pc].Arg = target
	}

	c := b.c
	c.Code = append([]Instr(nil), b.c.Code...)
	c.Consts = append([]any(nil), b.c.Consts...)
	c.Names = append([]string(nil), b.c.Names...)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Callable {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// Normalize converts Go numeric types to the interpreter's int64 and float64.
// Unsigned values above math.MaxInt64 are returned unchanged; use
// NormalizeValue to reject them.
func Normalize(v any) any {
	n, _ := NormalizeValue(v)
	return n
}

// NormalizeValue is like Normalize but fails for unsigned values that do not
// fit in int64.
func NormalizeValue(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		return unsigned(uint64(n))
	case uint64:
		return unsigned(n)
	case uintptr:
		return unsigned(uint64(n))
	case float32:
		return float64(n), nil
	}
	return v, nil
}

func unsigned(n uint64) (any, error) {
	if n > math.MaxInt64 {
		return n, errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("integer %d overflows int64", n))
	}
	return int64(n), nil
}
