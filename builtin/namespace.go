// Package builtin holds the global namespace of native functions visible to
// interpreted code.
package builtin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/future"
)

// Variadic marks a Func that accepts any number of arguments.
const Variadic = -1

// Func is a native function exposed to interpreted code.
//
// Exactly one of Call and Async is set. Call runs to completion on the
// interpreter goroutine. Async starts a native operation and returns its
// future; the calling tasklet suspends until the future settles.
type Func struct {
	Call  func(ctx context.Context, args []any) (any, error)
	Async func(ctx context.Context, args []any) (*future.Future, error)
	Name  string
	Arity int
}

func (f *Func) String() string {
	return fmt.Sprintf("<builtin %s>", f.Name)
}

// IsAsync reports whether calling f suspends the caller.
func (f *Func) IsAsync() bool {
	return f.Async != nil
}

// CheckArity validates the argument count.
func (f *Func) CheckArity(n int) error {
	if f.Arity == Variadic || f.Arity == n {
		return nil
	}
	return errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
		Path(f.Name).
		Detail("expected %d arguments, got %d", f.Arity, n).
		Build()
}

// Namespace maps builtin names to functions.
type Namespace struct {
	funcs  map[string]*Func
	mu     sync.RWMutex
	frozen bool
}

// NewNamespace creates an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{funcs: make(map[string]*Func)}
}

// Add registers f. Names are unique and registration closes once the
// namespace is frozen.
func (n *Namespace) Add(f *Func) error {
	if f == nil || f.Name == "" {
		return errors.InvalidInput(errors.PhaseRegister, "builtin without name")
	}
	if (f.Call == nil) == (f.Async == nil) {
		return errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Path(f.Name).
			Detail("builtin needs exactly one of Call or Async").
			Build()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.frozen {
		return errors.Closed(errors.PhaseRegister, "builtin namespace")
	}
	if _, exists := n.funcs[f.Name]; exists {
		return errors.New(errors.PhaseRegister, errors.KindRegistration).
			Path(f.Name).
			Detail("builtin %q already registered", f.Name).
			Build()
	}
	n.funcs[f.Name] = f
	return nil
}

// AddFunc registers a synchronous builtin.
func (n *Namespace) AddFunc(name string, arity int, call func(ctx context.Context, args []any) (any, error)) error {
	return n.Add(&Func{Name: name, Arity: arity, Call: call})
}

// AddAsync registers a builtin that suspends its caller.
func (n *Namespace) AddAsync(name string, arity int, async func(ctx context.Context, args []any) (*future.Future, error)) error {
	return n.Add(&Func{Name: name, Arity: arity, Async: async})
}

// Lookup returns the builtin with the given name.
func (n *Namespace) Lookup(name string) (*Func, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	f, ok := n.funcs[name]
	return f, ok
}

// Freeze closes the namespace to further registration.
func (n *Namespace) Freeze() {
	n.mu.Lock()
	n.frozen = true
	n.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (n *Namespace) Frozen() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.frozen
}

// Names returns the registered names in sorted order.
func (n *Namespace) Names() []string {
	n.mu.RLock()
	names := make([]string, 0, len(n.funcs))
	for name := range n.funcs {
		names = append(names, name)
	}
	n.mu.RUnlock()
	sort.Strings(names)
	return names
}
