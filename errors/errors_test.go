package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseAcquire,
				Kind:     KindNativeFailure,
				Path:     []string{"main", "open"},
				Resource: "file#3",
				Tasklet:  "main",
				Detail:   "cannot open",
			},
			contains: []string{"[acquire]", "native_failure", "main.open", "file#3", "tasklet main", "cannot open"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseRelease,
				Kind:  KindInvalidHandle,
			},
			contains: []string{"[release]", "invalid_handle"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRuntime,
				Kind:   KindEscapedFailure,
				Detail: "unhandled failure",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[runtime]", "escaped_failure", "unhandled failure", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseAcquire,
		Kind:  KindNativeFailure,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:    PhaseRegister,
		Kind:     KindDuplicateProvider,
		Resource: "file",
	}

	if !err.Is(&Error{Phase: PhaseRegister, Kind: KindDuplicateProvider}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseAcquire, Kind: KindDuplicateProvider}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseRegister, Kind: KindMissingProvider}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseRegister, Kind: KindDuplicateProvider}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestHasKind(t *testing.T) {
	missing := MissingProvider("file")
	escaped := Escaped("main", missing)
	wrapped := fmt.Errorf("run: %w", escaped)

	tests := []struct {
		name string
		err  error
		kind Kind
		want bool
	}{
		{"nil", nil, KindMissingProvider, false},
		{"plain error", errors.New("x"), KindMissingProvider, false},
		{"direct", missing, KindMissingProvider, true},
		{"through escaped", escaped, KindMissingProvider, true},
		{"outer kind", escaped, KindEscapedFailure, true},
		{"through fmt wrap", wrapped, KindMissingProvider, true},
		{"absent kind", wrapped, KindInvalidHandle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasKind(tt.err, tt.kind); got != tt.want {
				t.Errorf("HasKind(%v, %s) = %v, want %v", tt.err, tt.kind, got, tt.want)
			}
		})
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseResume, KindInvalidHandle).
		Path("main", "open").
		Resource("file#1").
		Tasklet("worker").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "suspended", "runnable").
		Build()

	if err.Phase != PhaseResume {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseResume)
	}
	if err.Kind != KindInvalidHandle {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidHandle)
	}
	if len(err.Path) != 2 || err.Path[0] != "main" || err.Path[1] != "open" {
		t.Errorf("Path = %v, want [main open]", err.Path)
	}
	if err.Resource != "file#1" {
		t.Errorf("Resource = %v, want 'file#1'", err.Resource)
	}
	if err.Tasklet != "worker" {
		t.Errorf("Tasklet = %v, want 'worker'", err.Tasklet)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected suspended, got runnable" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("DuplicateProvider", func(t *testing.T) {
		err := DuplicateProvider("file")
		if err.Kind != KindDuplicateProvider || err.Phase != PhaseRegister {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("MissingProvider", func(t *testing.T) {
		err := MissingProvider("timer")
		if err.Kind != KindMissingProvider {
			t.Errorf("Kind = %v, want %v", err.Kind, KindMissingProvider)
		}
		if !strings.Contains(err.Error(), "timer") {
			t.Errorf("message %q should name the kind", err.Error())
		}
	})

	t.Run("NativeFailure", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := NativeFailure("file#2", cause)
		if err.Kind != KindNativeFailure {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNativeFailure)
		}
		if !errors.Is(err, cause) {
			t.Error("native failure should wrap its cause")
		}
	})

	t.Run("Escaped", func(t *testing.T) {
		cause := Raised("boom")
		err := Escaped("main", cause)
		var inner *Error
		if !errors.As(err.Cause, &inner) || inner.Kind != KindRaised {
			t.Errorf("escaped failure lost its cause: %v", err)
		}
	})

	t.Run("Raised", func(t *testing.T) {
		err := Raised(7)
		if err.Value != 7 || err.Detail != "7" {
			t.Errorf("Value=%v Detail=%q", err.Value, err.Detail)
		}
	})

	t.Run("Closed", func(t *testing.T) {
		err := Closed(PhaseAcquire, "registry")
		if err.Kind != KindClosed || !strings.Contains(err.Detail, "registry") {
			t.Errorf("got %v", err)
		}
	})

	t.Run("Registration", func(t *testing.T) {
		cause := errors.New("dup")
		err := Registration("builtin open", cause)
		if err.Kind != KindRegistration || !errors.Is(err, cause) {
			t.Errorf("got %v", err)
		}
	})
}
