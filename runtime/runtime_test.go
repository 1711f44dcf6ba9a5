package runtime

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/tasklet-runtime/builtin"
	"github.com/wippyai/tasklet-runtime/code"
	"github.com/wippyai/tasklet-runtime/config"
	rterrors "github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/future"
	"github.com/wippyai/tasklet-runtime/provider/file"
	"github.com/wippyai/tasklet-runtime/resource"
)

func newRuntime(t *testing.T, cfg *config.Config, opts ...Option) (*Runtime, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{WithOutput(&out), WithLogger(zap.NewNop())}, opts...)
	rt, err := New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt, &out
}

func run(t *testing.T, rt *Runtime) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return rt.Run(ctx)
}

func TestNew_PublishesBuiltins(t *testing.T) {
	rt, _ := newRuntime(t, nil)

	for _, name := range []string{
		"print", "str", "strip", "len",
		"open", "readline", "read", "write", "close", "fileno",
		"sleep",
		"load_wasm", "wasm_exports", "wasm_call", "wasm_close",
	} {
		if _, ok := rt.Namespace().Lookup(name); !ok {
			t.Errorf("builtin %q missing", name)
		}
	}
	if rt.Namespace().Frozen() {
		t.Error("namespace should stay open until the first tick")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.Quantum = -3
	if _, err := New(context.Background(), cfg); !rterrors.HasKind(err, rterrors.KindInvalidInput) {
		t.Fatalf("expected config error, got %v", err)
	}

	cfg = config.Default()
	cfg.File.Root = filepath.Join(t.TempDir(), "missing")
	if _, err := New(context.Background(), cfg, WithLogger(zap.NewNop())); err == nil {
		t.Fatal("expected error for a missing file root")
	}
}

func TestRun_Print(t *testing.T) {
	rt, out := newRuntime(t, nil)
	main := code.NewBuilder("main", 0).
		LoadBuiltin("print").
		LoadConst("hello").
		LoadConst(int64(42)).
		Call(2).
		Op(code.OpPop).
		MustBuild()

	if _, err := rt.Schedule(main); err != nil {
		t.Fatal(err)
	}
	if err := run(t, rt); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.String() != "hello 42\n" {
		t.Errorf("output = %q", out.String())
	}
}

// catProgram opens name, prints its first line and closes it.
const catProgram = `
entry = ["main"]

[[callable]]
name = "main"
consts = ["notes.txt"]
locals = 1
code = [
  "LOAD_BUILTIN open",
  "LOAD_CONST 0",
  "CALL 1",
  "STORE_LOCAL 0",
  "LOAD_BUILTIN print",
  "LOAD_BUILTIN readline",
  "LOAD_LOCAL 0",
  "CALL 1",
  "CALL 1",
  "POP",
  "LOAD_BUILTIN close",
  "LOAD_LOCAL 0",
  "CALL 1",
  "RETURN",
]
`

func TestRun_FileProgram(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("first\nsecond\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.File.Root = dir

	rt, out := newRuntime(t, cfg)
	prog, err := code.LoadProgram([]byte(catProgram))
	if err != nil {
		t.Fatalf("LoadProgram failed: %v", err)
	}
	receipts, err := rt.Load(prog)
	if err != nil || len(receipts) != 1 {
		t.Fatalf("Load = %v, %v", receipts, err)
	}

	if err := run(t, rt); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.String() != "first\n\n" {
		t.Errorf("output = %q", out.String())
	}
	if rt.Registry().Len() != 0 {
		t.Errorf("closed file left %d handles", rt.Registry().Len())
	}
}

func sleeper(name string, secs float64) *code.Callable {
	return code.NewBuilder(name, 0).
		LoadBuiltin("sleep").
		LoadConst(secs).
		Call(1).
		Op(code.OpPop).
		LoadBuiltin("print").
		LoadConst(name).
		Call(1).
		Op(code.OpReturn).
		MustBuild()
}

func TestRun_SleepersInterleave(t *testing.T) {
	rt, out := newRuntime(t, nil)

	for _, fn := range []*code.Callable{sleeper("slow", 0.15), sleeper("fast", 0.01)} {
		if _, err := rt.Schedule(fn); err != nil {
			t.Fatal(err)
		}
	}
	start := time.Now()
	if err := run(t, rt); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if out.String() != "fast\nslow\n" {
		t.Errorf("output = %q, want fast before slow", out.String())
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("sleeps did not overlap: %v", elapsed)
	}
	if rt.Registry().Len() != 0 {
		t.Errorf("fired timers left %d handles", rt.Registry().Len())
	}
}

func TestRun_DisabledProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Timer.Enabled = false
	rt, out := newRuntime(t, cfg)

	failing := sleeper("nap", 0)
	ok := code.NewBuilder("other", 0).
		LoadBuiltin("print").
		LoadConst("still here").
		Call(1).
		Op(code.OpReturn).
		MustBuild()

	bad, _ := rt.Schedule(failing)
	good, _ := rt.Schedule(ok)

	err := run(t, rt)
	if !rterrors.HasKind(err, rterrors.KindEscapedFailure) || !rterrors.HasKind(err, rterrors.KindMissingProvider) {
		t.Fatalf("expected escaped missing provider, got %v", err)
	}
	if _, err := bad.Result(); !rterrors.HasKind(err, rterrors.KindMissingProvider) {
		t.Errorf("bad tasklet result: %v", err)
	}
	if _, err := good.Result(); err != nil {
		t.Errorf("other tasklet should complete, got %v", err)
	}
	if out.String() != "still here\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_NativeFailureCaught(t *testing.T) {
	cfg := config.Default()
	cfg.File.Root = t.TempDir()
	rt, out := newRuntime(t, cfg)

	main := code.NewBuilder("main", 0).
		EmitJump(code.OpSetupExcept, "handler").
		LoadBuiltin("open").
		LoadConst("missing.txt").
		Call(1).
		Op(code.OpReturn).
		Label("handler").
		StoreLocal(0).
		LoadBuiltin("print").
		LoadConst("caught").
		Call(1).
		Op(code.OpReturn).
		MustBuild()

	r, _ := rt.Schedule(main)
	if err := run(t, rt); err != nil {
		t.Fatalf("handled failure escaped: %v", err)
	}
	if _, err := r.Result(); err != nil {
		t.Errorf("Result = %v", err)
	}
	if out.String() != "caught\n" {
		t.Errorf("output = %q", out.String())
	}
}

type stubProvider struct {
	calls int
}

func (p *stubProvider) Acquire(_ context.Context, h resource.Handle, _ []any) *future.Future {
	p.calls++
	return future.Resolved("stub" + h.String())
}

func (p *stubProvider) PublishBuiltins(*builtin.Namespace) error { return nil }

func TestWithProvider(t *testing.T) {
	stub := &stubProvider{}
	rt, _ := newRuntime(t, nil, WithProvider(resource.KindFile, stub))

	if p, _ := rt.Registry().Provider(resource.KindFile); p != stub {
		t.Fatalf("file provider = %T, want stub", p)
	}
	if _, ok := rt.Namespace().Lookup("readline"); ok {
		t.Error("configured file provider should not be installed")
	}

	main := code.NewBuilder("main", 0).
		LoadBuiltin("open").
		LoadConst("x").
		Call(1).
		Op(code.OpReturn).
		MustBuild()
	r, _ := rt.Schedule(main)
	if err := run(t, rt); err != nil {
		t.Fatal(err)
	}
	if v, _ := r.Result(); v != "stub#1" || stub.calls != 1 {
		t.Errorf("Result = %v, calls = %d", v, stub.calls)
	}
}

func TestClose_SweepsHandles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.File.Root = dir

	rt, err := New(context.Background(), cfg, WithLogger(zap.NewNop()), WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatal(err)
	}
	main := code.NewBuilder("main", 0).
		LoadBuiltin("open").
		LoadConst("a.txt").
		Call(1).
		Op(code.OpReturn).
		MustBuild()
	r, _ := rt.Schedule(main)
	if err := run(t, rt); err != nil {
		t.Fatal(err)
	}
	v, _ := r.Result()
	s, ok := v.(*file.Stream)
	if !ok {
		t.Fatalf("Result = %T, want *file.Stream", v)
	}
	if rt.Registry().Len() != 1 {
		t.Fatalf("active handles = %d, want 1", rt.Registry().Len())
	}

	if err := rt.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if rt.Registry().Len() != 0 || !s.Closed() {
		t.Error("Close should sweep handles and close the stream")
	}
	if !strings.Contains(s.String(), "a.txt") {
		t.Errorf("stream = %s", s)
	}
}
