package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wippyai/tasklet-runtime/builtin"
	rterrors "github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/resource"
)

type fixture struct {
	reg *resource.Registry
	ns  *builtin.Namespace
	p   *Provider
	dir string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	p, err := New(append([]Option{WithRoot(dir)}, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	reg := resource.NewRegistry()
	if err := reg.RegisterProvider(resource.KindFile, p); err != nil {
		t.Fatalf("RegisterProvider failed: %v", err)
	}
	ns := builtin.NewNamespace()
	if err := reg.RegisterBuiltins(ns); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return &fixture{reg: reg, ns: ns, p: p, dir: dir}
}

func (fx *fixture) open(t *testing.T, args ...any) (*Stream, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, f, err := fx.reg.Acquire(ctx, resource.KindFile, args...)
	if err != nil {
		return nil, err
	}
	v, err := f.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return v.(*Stream), nil
}

func (fx *fixture) call(t *testing.T, name string, args ...any) (any, error) {
	t.Helper()
	fn, ok := fx.ns.Lookup(name)
	if !ok {
		t.Fatalf("builtin %q not published", name)
	}
	return fn.Call(context.Background(), args)
}

func (fx *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(fx.dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		mode    string
		read    bool
		write   bool
		binary  bool
		wantErr bool
	}{
		{mode: "r", read: true},
		{mode: "rt", read: true},
		{mode: "rb", read: true, binary: true},
		{mode: "w", write: true},
		{mode: "a", write: true},
		{mode: "x", write: true},
		{mode: "r+", read: true, write: true},
		{mode: "w+b", read: true, write: true, binary: true},
		{mode: "", wantErr: true},
		{mode: "rw", wantErr: true},
		{mode: "r++", wantErr: true},
		{mode: "rbt", wantErr: true},
		{mode: "q", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			m, err := parseMode(tt.mode)
			if tt.wantErr {
				var fe *Error
				if !errors.As(err, &fe) || fe.Code != CodeInvalid {
					t.Fatalf("expected invalid mode error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseMode failed: %v", err)
			}
			if m.read != tt.read || m.write != tt.write || m.binary != tt.binary {
				t.Errorf("got read=%v write=%v binary=%v", m.read, m.write, m.binary)
			}
		})
	}
}

func TestProvider_ReadLines(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "lines.txt", "one\ntwo\nthree")

	s, err := fx.open(t, "lines.txt")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	for _, want := range []string{"one\n", "two\n", "three", "", ""} {
		got, err := fx.call(t, "readline", s)
		if err != nil {
			t.Fatalf("readline failed: %v", err)
		}
		if got != want {
			t.Errorf("readline = %q, want %q", got, want)
		}
	}
}

func TestProvider_WriteThenRead(t *testing.T) {
	fx := newFixture(t)

	w, err := fx.open(t, "out.txt", "w")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	n, err := fx.call(t, "write", w, "héllo\n")
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if n != int64(6) {
		t.Errorf("write returned %v, want 6", n)
	}
	if _, err := fx.call(t, "close", w); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	r, err := fx.open(t, "out.txt")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, err := fx.call(t, "read", r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != "héllo\n" {
		t.Errorf("read = %q", got)
	}

	head, err := fx.call(t, "read", r, int64(3))
	if err != nil {
		t.Fatalf("sized read failed: %v", err)
	}
	if head != "" {
		t.Errorf("read at EOF = %q, want empty", head)
	}
}

func TestProvider_ReadSizes(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want string
	}{
		{"zero", 0, ""},
		{"partial", 4, "abcd"},
		{"exact", 6, "abcdef"},
		{"beyond end", 100, "abcdef"},
		{"huge", int64(1) << 62, "abcdef"},
		{"negative reads all", -5, "abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.write(t, "data.txt", "abcdef")
			s, err := fx.open(t, "data.txt")
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}
			got, err := fx.call(t, "read", s, tt.size)
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("read(%d) = %q, want %q", tt.size, got, tt.want)
			}
		})
	}
}

func TestProvider_Encoding(t *testing.T) {
	fx := newFixture(t, WithEncoding("latin1"))

	w, err := fx.open(t, "latin.txt", "w")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := fx.call(t, "write", w, "café"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := fx.call(t, "close", w); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(fx.dir, "latin.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 4 || raw[3] != 0xe9 {
		t.Errorf("raw bytes = %x, want latin1 encoding", raw)
	}

	r, err := fx.open(t, "latin.txt")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, err := fx.call(t, "readline", r)
	if err != nil {
		t.Fatalf("readline failed: %v", err)
	}
	if got != "café" {
		t.Errorf("readline = %q", got)
	}
}

func TestProvider_UnknownEncoding(t *testing.T) {
	_, err := New(WithEncoding("no-such-charset"))
	if !rterrors.HasKind(err, rterrors.KindInvalidInput) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestProvider_OpenFailures(t *testing.T) {
	fx := newFixture(t)
	if err := os.Mkdir(filepath.Join(fx.dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	fx.write(t, "exists.txt", "x")

	tests := []struct {
		name string
		args []any
		code Code
	}{
		{"missing", []any{"nope.txt"}, CodeNotFound},
		{"directory", []any{"sub"}, CodeIsDirectory},
		{"escape", []any{"../outside.txt"}, CodeAccess},
		{"exclusive", []any{"exists.txt", "x"}, CodeExist},
		{"bad mode", []any{"exists.txt", "rw"}, CodeInvalid},
		{"bad name", []any{int64(3)}, CodeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.open(t, tt.args...)
			if !rterrors.HasKind(err, rterrors.KindNativeFailure) {
				t.Fatalf("expected native failure, got %v", err)
			}
			var fe *Error
			if !errors.As(err, &fe) {
				t.Fatalf("expected *Error in chain, got %v", err)
			}
			if fe.Code != tt.code {
				t.Errorf("code = %s, want %s", fe.Code, tt.code)
			}
		})
	}

	if n := fx.reg.Len(); n != 0 {
		t.Errorf("failed opens left %d handles tracked", n)
	}
}

func TestProvider_CloseReleasesHandle(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "a.txt", "a")

	s, err := fx.open(t, "a.txt")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	fd, err := fx.call(t, "fileno", s)
	if err != nil {
		t.Fatalf("fileno failed: %v", err)
	}
	if fd != int64(s.Descriptor()) {
		t.Errorf("fileno = %v, want %d", fd, s.Descriptor())
	}
	if !s.Handle().Valid() {
		t.Fatal("handle should be tracked after open")
	}

	if _, err := fx.call(t, "close", s); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if s.Handle().Valid() {
		t.Error("handle still tracked after close")
	}
	if fx.p.Open() != 0 {
		t.Errorf("provider still tracks %d streams", fx.p.Open())
	}
	if _, err := fx.call(t, "close", s); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	_, err = fx.call(t, "readline", s)
	var fe *Error
	if !errors.As(err, &fe) || fe.Code != CodeClosed {
		t.Errorf("readline after close: %v", err)
	}
}

func TestProvider_WrongArgument(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.call(t, "readline", "not a file")
	if !rterrors.HasKind(err, rterrors.KindInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestProvider_ReadOnlyWrite(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "ro.txt", "data")

	s, err := fx.open(t, "ro.txt")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	_, err = fx.call(t, "write", s, "more")
	if !rterrors.HasKind(err, rterrors.KindNativeFailure) {
		t.Errorf("expected native failure, got %v", err)
	}
}

func TestProvider_CloseSweepsStreams(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "a.txt", "a")
	fx.write(t, "b.txt", "b")

	a, err := fx.open(t, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	b, err := fx.open(t, "b.txt")
	if err != nil {
		t.Fatal(err)
	}

	if err := fx.reg.Close(); err != nil {
		t.Fatalf("registry Close failed: %v", err)
	}
	if !a.Closed() || !b.Closed() {
		t.Error("registry close should close open streams")
	}
	if _, err := fx.open(t, "a.txt"); !rterrors.HasKind(err, rterrors.KindClosed) {
		t.Errorf("open after close: %v", err)
	}
}
