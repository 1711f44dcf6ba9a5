package wasm

import (
	"context"

	"github.com/wippyai/tasklet-runtime/builtin"
	"github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/future"
	"github.com/wippyai/tasklet-runtime/resource"
)

// PublishBuiltins adds wasm_exports, wasm_call and wasm_close.
func (p *Provider) PublishBuiltins(ns *builtin.Namespace) error {
	if err := ns.AddFunc("wasm_exports", 1, p.exports); err != nil {
		return err
	}
	if err := ns.AddAsync("wasm_call", builtin.Variadic, p.call); err != nil {
		return err
	}
	return ns.AddFunc("wasm_close", 1, p.close)
}

func moduleArg(op string, args []any) (*Module, error) {
	if len(args) == 0 {
		return nil, errors.InvalidInput(errors.PhaseRuntime, op+" expects a module")
	}
	m, ok := args[0].(*Module)
	if !ok {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Path(op).
			Detail("expected a module, got %T", args[0]).
			Build()
	}
	return m, nil
}

func failure(m *Module, err error) error {
	if errors.HasKind(err, errors.KindInvalidInput) || errors.HasKind(err, errors.KindNativeFailure) {
		return err
	}
	return errors.NativeFailure(resource.Describe(resource.KindModule, m.Handle()), err)
}

func (p *Provider) exports(_ context.Context, args []any) (any, error) {
	m, err := moduleArg("wasm_exports", args)
	if err != nil {
		return nil, err
	}
	names, err := m.Exports()
	if err != nil {
		return nil, failure(m, err)
	}
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out, nil
}

// call runs wasm_call(module, name, args...) on its own goroutine.
func (p *Provider) call(ctx context.Context, args []any) (*future.Future, error) {
	m, err := moduleArg("wasm_call", args)
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "wasm_call expects (module, name, args...)")
	}
	fn, ok := args[1].(string)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseRuntime, "export name must be a string")
	}
	params := append([]any(nil), args[2:]...)

	return future.Go(ctx, func(ctx context.Context) (any, error) {
		v, err := m.Call(ctx, fn, params)
		if err != nil {
			return nil, failure(m, err)
		}
		return v, nil
	}), nil
}

// close frees the module and releases its handle. Closing an already closed
// module is a no-op.
func (p *Provider) close(ctx context.Context, args []any) (any, error) {
	m, err := moduleArg("wasm_close", args)
	if err != nil {
		return nil, err
	}
	if m.Closed() {
		return nil, nil
	}
	if err := p.closeModule(ctx, m); err != nil {
		return nil, failure(m, err)
	}
	if err := m.Handle().Release(); err != nil {
		return nil, err
	}
	return nil, nil
}
