package code

import (
	"math"
	"strings"
	"testing"

	"github.com/wippyai/tasklet-runtime/errors"
)

func TestParseOp(t *testing.T) {
	for op := OpNop; op < opCount; op++ {
		got, ok := ParseOp(op.String())
		if !ok || got != op {
			t.Errorf("ParseOp(%q) = %v, %v", op.String(), got, ok)
		}
	}
	if _, ok := ParseOp("WAIT"); ok {
		t.Error("ParseOp should reject unknown mnemonics")
	}
	if s := Op(200).String(); s != "OP(200)" {
		t.Errorf("unknown op String = %q", s)
	}
}

func TestCallable_Validate(t *testing.T) {
	tests := []struct {
		name    string
		c       *Callable
		wantErr bool
	}{
		{"empty", &Callable{Name: "f"}, false},
		{"nil", nil, true},
		{"negative arity", &Callable{Name: "f", Arity: -1}, true},
		{"locals below arity", &Callable{Name: "f", Arity: 2, Locals: 1}, true},
		{"const out of range", &Callable{Name: "f", Code: []Instr{{OpLoadConst, 0}}}, true},
		{"const in range", &Callable{Name: "f", Consts: []any{int64(1)}, Code: []Instr{{OpLoadConst, 0}}}, false},
		{"local out of range", &Callable{Name: "f", Locals: 1, Code: []Instr{{OpStoreLocal, 1}}}, true},
		{"name out of range", &Callable{Name: "f", Code: []Instr{{OpLoadBuiltin, 0}}}, true},
		{"negative call", &Callable{Name: "f", Code: []Instr{{OpCall, -1}}}, true},
		{"jump to end", &Callable{Name: "f", Code: []Instr{{OpJump, 1}}}, false},
		{"jump past end", &Callable{Name: "f", Code: []Instr{{OpJump, 2}}}, true},
		{"jump to self", &Callable{Name: "f", Code: []Instr{{OpJump, 0}}}, false},
		{"unknown opcode", &Callable{Name: "f", Code: []Instr{{Op(99), 0}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.HasKind(err, errors.KindInvalidInput) {
				t.Errorf("expected invalid_input, got %v", err)
			}
		})
	}
}

func TestBuilder_Labels(t *testing.T) {
	c, err := NewBuilder("loop", 1).
		Label("top").
		LoadLocal(0).
		EmitJump(OpJumpIfFalse, "done").
		EmitJump(OpJump, "top").
		Label("done").
		LoadConst(7).
		Op(OpReturn).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if c.Code[1].Arg != 3 {
		t.Errorf("forward label resolved to %d, want 3", c.Code[1].Arg)
	}
	if c.Code[2].Arg != 0 {
		t.Errorf("backward label resolved to %d, want 0", c.Code[2].Arg)
	}
	if c.Consts[0] != int64(7) {
		t.Errorf("int const not normalized: %T", c.Consts[0])
	}
	if c.Locals != 1 {
		t.Errorf("Locals = %d, want 1", c.Locals)
	}
}

func TestBuilder_UndefinedLabel(t *testing.T) {
	_, err := NewBuilder("f", 0).EmitJump(OpJump, "nowhere").Build()
	if !errors.HasKind(err, errors.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    any
		wantErr bool
	}{
		{"int", 7, int64(7), false},
		{"int32", int32(-3), int64(-3), false},
		{"uint", uint(9), int64(9), false},
		{"uint64", uint64(1) << 40, int64(1) << 40, false},
		{"uint64 max int", uint64(math.MaxInt64), int64(math.MaxInt64), false},
		{"uint64 overflow", uint64(math.MaxInt64) + 1, nil, true},
		{"uintptr", uintptr(5), int64(5), false},
		{"float32", float32(0.5), 0.5, false},
		{"string", "x", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeValue(tt.in)
			if tt.wantErr {
				if !errors.HasKind(err, errors.KindInvalidInput) {
					t.Fatalf("NormalizeValue(%v) err = %v, want invalid_input", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("NormalizeValue(%v) = %#v, %v, want %#v", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestBuilder_NameInterning(t *testing.T) {
	c := NewBuilder("f", 0).
		LoadBuiltin("open").
		LoadBuiltin("sleep").
		LoadBuiltin("open").
		MustBuild()
	if len(c.Names) != 2 {
		t.Fatalf("Names = %v, want 2 entries", c.Names)
	}
	if c.Code[0].Arg != c.Code[2].Arg {
		t.Error("same name should share an index")
	}
}

const sampleProgram = `
entry = ["main"]

[[callable]]
name = "main"
consts = [3]
code = [
  "# count down through a helper",
  "LOAD_CONST 0",
  "STORE_LOCAL 0",
  "loop:",
  "LOAD_FUNC step",
  "LOAD_LOCAL 0",
  "CALL 1",
  "DUP",
  "STORE_LOCAL 0",
  "JUMP_IF_FALSE @done",
  "YIELD",
  "JUMP @loop",
  "done:",
  "LOAD_BUILTIN print",
  "LOAD_LOCAL 0",
  "CALL 1",
  "RETURN",
]

[[callable]]
name = "step"
arity = 1
consts = [-1]
code = [
  "LOAD_LOCAL 0",
  "LOAD_CONST 0",
  "ADD",
  "RETURN",
]
`

func TestLoadProgram(t *testing.T) {
	p, err := LoadProgram([]byte(sampleProgram))
	if err != nil {
		t.Fatalf("LoadProgram failed: %v", err)
	}

	entries, err := p.Entries()
	if err != nil || len(entries) != 1 {
		t.Fatalf("Entries = %v, %v", entries, err)
	}
	main := entries[0]
	if main.Locals != 1 {
		t.Errorf("main.Locals = %d, want 1", main.Locals)
	}

	step, ok := p.Callable("step")
	if !ok {
		t.Fatal("step not found")
	}
	if main.Consts[1] != step {
		t.Errorf("LOAD_FUNC should reference the step callable, got %v", main.Consts[1])
	}
	if step.Consts[0] != int64(-1) {
		t.Errorf("step const = %#v, want int64(-1)", step.Consts[0])
	}

	// JUMP_IF_FALSE @done: done label sits at the LOAD_BUILTIN instruction.
	jif := main.Code[7]
	if jif.Op != OpJumpIfFalse || main.Code[jif.Arg].Op != OpLoadBuiltin {
		t.Errorf("done label misresolved: %v -> %v", jif, main.Code[jif.Arg])
	}

	if names := p.Names(); len(names) != 2 || names[0] != "main" || names[1] != "step" {
		t.Errorf("Names = %v", names)
	}
}

func TestLoadProgram_LabelAtEnd(t *testing.T) {
	src := `
entry = ["main"]

[[callable]]
name = "main"
consts = [false]
code = [
  "LOAD_CONST 0",
  "JUMP_IF_FALSE @done",
  "LOAD_BUILTIN print",
  "POP",
  "done:",
]
`
	p, err := LoadProgram([]byte(src))
	if err != nil {
		t.Fatalf("LoadProgram failed: %v", err)
	}
	main, _ := p.Callable("main")
	if jif := main.Code[1]; jif.Arg != len(main.Code) {
		t.Errorf("done label = %d, want %d", jif.Arg, len(main.Code))
	}
}

func TestLoadProgram_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"bad toml", `entry = [`, "decode program"},
		{"unknown field", "entry = [\"m\"]\nbogus = 1\n", "decode program"},
		{"no entry", "[[callable]]\nname = \"m\"\n", "no entry"},
		{"missing entry", "entry = [\"x\"]\n[[callable]]\nname = \"m\"\n", "not found"},
		{"duplicate", "entry = [\"m\"]\n[[callable]]\nname = \"m\"\n[[callable]]\nname = \"m\"\n", "duplicate"},
		{"unknown instr", "entry = [\"m\"]\n[[callable]]\nname = \"m\"\ncode = [\"WAIT\"]\n", "unknown instruction"},
		{"unknown func", "entry = [\"m\"]\n[[callable]]\nname = \"m\"\ncode = [\"LOAD_FUNC x\"]\n", "unknown callable"},
		{"bad operand", "entry = [\"m\"]\n[[callable]]\nname = \"m\"\ncode = [\"CALL two\"]\n", "bad operand"},
		{"extra operand", "entry = [\"m\"]\n[[callable]]\nname = \"m\"\ncode = [\"POP 1\"]\n", "takes no operand"},
		{"verbs in mnemonic", "entry = [\"m\"]\n[[callable]]\nname = \"m\"\ncode = [\"W%d%s\"]\n", `unknown instruction "W%d%s"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadProgram([]byte(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
			if !strings.Contains(err.Error(), "[load]") {
				t.Errorf("error %q should be a load error", err.Error())
			}
		})
	}
}

func TestDisassemble(t *testing.T) {
	c := NewBuilder("main", 0).
		LoadBuiltin("open").
		LoadConst("data.txt").
		Call(1).
		Op(OpReturn).
		MustBuild()

	full := Disassemble(c, 2, -1)
	lines := strings.Split(strings.TrimSuffix(full, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), full)
	}
	if !strings.HasPrefix(lines[2], "-->") {
		t.Errorf("cursor not on pc 2:\n%s", full)
	}
	if !strings.Contains(lines[0], "(open)") || !strings.Contains(lines[1], `("data.txt")`) {
		t.Errorf("operands not annotated:\n%s", full)
	}

	window := Disassemble(c, 0, 1)
	if n := strings.Count(window, "\n"); n != 2 {
		t.Errorf("radius 1 at pc 0 should render 2 lines, got %d:\n%s", n, window)
	}

	end := Disassemble(c, 4, 0)
	if !strings.Contains(end, "<end>") {
		t.Errorf("pc past the end should render an end marker:\n%s", end)
	}
}

func TestRepr(t *testing.T) {
	tests := []struct {
		v    any
		want string
	}{
		{nil, "nil"},
		{"a", `"a"`},
		{int64(3), "3"},
		{true, "true"},
		{[]any{"ping", int64(1)}, `["ping", 1]`},
		{&Callable{Name: "f", Arity: 2}, "<callable f/2>"},
		{errors.Raised("boom"), "<failure: [runtime] raised: boom>"},
	}
	for _, tt := range tests {
		if got := Repr(tt.v); got != tt.want {
			t.Errorf("Repr(%#v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
