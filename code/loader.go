package code

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/wippyai/tasklet-runtime/errors"
)

// Program is a set of named callables loaded from a program file, plus the
// names of the callables to schedule as tasklets.
type Program struct {
	callables map[string]*Callable
	Entry     []string
	order     []string
}

// Callable returns the callable with the given name.
func (p *Program) Callable(name string) (*Callable, bool) {
	c, ok := p.callables[name]
	return c, ok
}

// Names returns callable names in file order.
func (p *Program) Names() []string {
	return append([]string(nil), p.order...)
}

// Entries resolves the entry list.
func (p *Program) Entries() ([]*Callable, error) {
	out := make([]*Callable, 0, len(p.Entry))
	for _, name := range p.Entry {
		c, ok := p.callables[name]
		if !ok {
			return nil, errors.NotFound(errors.PhaseLoad, "entry callable", name)
		}
		out = append(out, c)
	}
	return out, nil
}

type programFile struct {
	Entry     []string       `toml:"entry"`
	Callables []callableFile `toml:"callable"`
}

type callableFile struct {
	Name   string   `toml:"name"`
	Consts []any    `toml:"consts"`
	Code   []string `toml:"code"`
	Arity  int      `toml:"arity"`
	Locals int      `toml:"locals"`
}

// LoadProgramFile reads and decodes a program file.
func LoadProgramFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("read %s", path), err)
	}
	return LoadProgram(data)
}

// LoadProgram decodes a TOML program:
//
//	entry = ["main"]
//
//	[[callable]]
//	name = "main"
//	consts = ["data.txt", "r"]
//	code = [
//	  "LOAD_BUILTIN open",
//	  "LOAD_CONST 0",
//	  "LOAD_CONST 1",
//	  "CALL 2",
//	  "RETURN",
//	]
//
// Instructions are a mnemonic followed by an optional operand. LOAD_BUILTIN
// takes a builtin name, jump operands may be "@label" with labels declared as
// "name:" lines, and the pseudo instruction "LOAD_FUNC name" loads another
// callable of the same program.
func LoadProgram(data []byte) (*Program, error) {
	var pf programFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pf); err != nil {
		var derr *toml.DecodeError
		if stderrors.As(err, &derr) {
			row, col := derr.Position()
			return nil, errors.Load(fmt.Sprintf("decode program at %d:%d", row, col), err)
		}
		return nil, errors.Load("decode program", err)
	}

	p := &Program{
		callables: make(map[string]*Callable, len(pf.Callables)),
		Entry:     pf.Entry,
	}

	// Allocate first so LOAD_FUNC can refer forward and recursively.
	for _, cf := range pf.Callables {
		if cf.Name == "" {
			return nil, errors.Load("callable without name", nil)
		}
		if _, dup := p.callables[cf.Name]; dup {
			return nil, errors.Load(fmt.Sprintf("duplicate callable %q", cf.Name), nil)
		}
		p.callables[cf.Name] = &Callable{Name: cf.Name}
		p.order = append(p.order, cf.Name)
	}

	for _, cf := range pf.Callables {
		if err := p.assemble(cf); err != nil {
			return nil, err
		}
	}

	if len(p.Entry) == 0 {
		return nil, errors.Load("program has no entry", nil)
	}
	if _, err := p.Entries(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Program) assemble(cf callableFile) error {
	b := NewBuilder(cf.Name, cf.Arity).Locals(cf.Locals)
	for _, v := range cf.Consts {
		b.Const(v)
	}

	for line, raw := range cf.Code {
		text := strings.TrimSpace(raw)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if label, ok := strings.CutSuffix(text, ":"); ok && !strings.ContainsAny(label, " \t") {
			b.Label(label)
			continue
		}

		mnemonic, operand, _ := strings.Cut(text, " ")
		operand = strings.TrimSpace(operand)

		if mnemonic == "LOAD_FUNC" {
			target, ok := p.callables[operand]
			if !ok {
				return lineError(cf.Name, line, "unknown callable %q", operand)
			}
			b.LoadConst(target)
			continue
		}

		op, ok := ParseOp(mnemonic)
		if !ok {
			return lineError(cf.Name, line, "unknown instruction %q", mnemonic)
		}

		switch {
		case !op.HasArg():
			if operand != "" {
				return lineError(cf.Name, line, "%s takes no operand", op)
			}
			b.Op(op)
		case op == OpLoadBuiltin:
			if operand == "" {
				return lineError(cf.Name, line, "LOAD_BUILTIN needs a name")
			}
			b.LoadBuiltin(operand)
		case op.IsJump() && strings.HasPrefix(operand, "@"):
			b.EmitJump(op, operand[1:])
		default:
			n, err := strconv.Atoi(operand)
			if err != nil {
				return lineError(cf.Name, line, "bad operand %q for %s", operand, op)
			}
			if (op == OpLoadLocal || op == OpStoreLocal) && n >= 0 {
				b.Locals(n + 1)
			}
			b.Emit(op, n)
		}
	}

	built, err := b.Build()
	if err != nil {
		return err
	}
	*p.callables[cf.Name] = *built
	return nil
}

func lineError(callable string, line int, format string, args ...any) error {
	return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
		Path(callable, strconv.Itoa(line)).
		Detail(format, args...).
		Build()
}
