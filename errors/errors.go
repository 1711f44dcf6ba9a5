package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegister Phase = "register" // provider and builtin registration
	PhaseAcquire  Phase = "acquire"  // native resource acquisition
	PhaseRelease  Phase = "release"  // handle release
	PhaseSchedule Phase = "schedule" // tasklet creation
	PhaseResume   Phase = "resume"   // result injection into a suspended tasklet
	PhaseRuntime  Phase = "runtime"  // interpreted execution
	PhaseConfig   Phase = "config"   // configuration loading
	PhaseLoad     Phase = "load"     // program loading
)

// Kind categorizes the error
type Kind string

const (
	KindDuplicateProvider Kind = "duplicate_provider"
	KindMissingProvider   Kind = "missing_provider"
	KindInvalidHandle     Kind = "invalid_handle"
	KindNativeFailure     Kind = "native_failure"
	KindEscapedFailure    Kind = "escaped_failure"
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidState      Kind = "invalid_state"
	KindNotFound          Kind = "not_found"
	KindClosed            Kind = "closed"
	KindRaised            Kind = "raised"
	KindRegistration      Kind = "registration"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Resource string
	Tasklet  string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Resource != "" || e.Tasklet != "" {
		b.WriteString(": ")
		if e.Resource != "" && e.Tasklet != "" {
			b.WriteString("resource ")
			b.WriteString(e.Resource)
			b.WriteString(", tasklet ")
			b.WriteString(e.Tasklet)
		} else if e.Resource != "" {
			b.WriteString("resource ")
			b.WriteString(e.Resource)
		} else {
			b.WriteString("tasklet ")
			b.WriteString(e.Tasklet)
		}
	}

	if e.Detail != "" {
		if e.Resource != "" || e.Tasklet != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// HasKind reports whether any *Error in err's chain has the given kind,
// regardless of phase.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Resource sets the resource description (kind and descriptor)
func (b *Builder) Resource(r string) *Builder {
	b.err.Resource = r
	return b
}

// Tasklet sets the tasklet name or id
func (b *Builder) Tasklet(t string) *Builder {
	b.err.Tasklet = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the runtime taxonomy

// DuplicateProvider creates an error for a second provider registered for one kind
func DuplicateProvider(kind string) *Error {
	return &Error{
		Phase:    PhaseRegister,
		Kind:     KindDuplicateProvider,
		Resource: kind,
		Detail:   fmt.Sprintf("provider for %s already registered", kind),
	}
}

// MissingProvider creates an error for a builtin invoked without a provider
func MissingProvider(kind string) *Error {
	return &Error{
		Phase:    PhaseAcquire,
		Kind:     KindMissingProvider,
		Resource: kind,
		Detail:   fmt.Sprintf("no provider registered for %s", kind),
	}
}

// InvalidHandle creates an error for an unknown or already released handle
func InvalidHandle(phase Phase, resource string, detail string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindInvalidHandle,
		Resource: resource,
		Detail:   detail,
	}
}

// NativeFailure wraps a provider-specific cause as an interpreter-visible failure
func NativeFailure(resource string, cause error) *Error {
	return &Error{
		Phase:    PhaseAcquire,
		Kind:     KindNativeFailure,
		Resource: resource,
		Detail:   "native operation failed",
		Cause:    cause,
	}
}

// Escaped wraps a failure that unwound past a tasklet's outermost frame.
// The original failure stays reachable through Unwrap.
func Escaped(tasklet string, cause error) *Error {
	return &Error{
		Phase:   PhaseRuntime,
		Kind:    KindEscapedFailure,
		Tasklet: tasklet,
		Detail:  "unhandled failure",
		Cause:   cause,
	}
}

// Raised creates a failure for an interpreted raise of a non-error value
func Raised(value any) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindRaised,
		Detail: fmt.Sprintf("%v", value),
		Value:  value,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidState creates an error for an operation attempted in the wrong state
func InvalidState(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Detail: detail,
	}
}

// Closed creates an error for use after teardown
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", what),
	}
}

// Registration creates a registration error
func Registration(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s", name),
		Cause:  cause,
	}
}

// Load creates a program loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// Config creates a configuration error
func Config(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}
