package wasm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/resource"
)

// Module is a compiled WebAssembly module.
type Module struct {
	compiled wazero.CompiledModule
	runtime  wazero.Runtime
	handle   resource.Handle
	name     string
	mu       sync.Mutex
	closed   bool
}

// Handle returns the registry handle the module was acquired under.
func (m *Module) Handle() resource.Handle { return m.handle }

// Descriptor returns the handle descriptor.
func (m *Module) Descriptor() uint64 { return m.handle.Descriptor() }

// Name returns the path the module was loaded from.
func (m *Module) Name() string { return m.name }

func (m *Module) String() string {
	return fmt.Sprintf("<module %s fd=%d>", m.name, m.handle.Descriptor())
}

// Closed reports whether Close has been called.
func (m *Module) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Exports returns the exported function names, sorted.
func (m *Module) Exports() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.Closed(errors.PhaseRuntime, "module "+m.name)
	}
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Call instantiates the module, invokes the exported function fn and closes
// the instance. Integer and float arguments are encoded by the parameter
// types. The first result is returned, or nil for functions without results.
func (m *Module) Call(ctx context.Context, fn string, args []any) (any, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.Closed(errors.PhaseRuntime, "module "+m.name)
	}
	compiled := m.compiled
	m.mu.Unlock()

	def, ok := compiled.ExportedFunctions()[fn]
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "export", fn)
	}
	params, err := encodeParams(fn, def.ParamTypes(), args)
	if err != nil {
		return nil, err
	}

	// An empty name lets the same module be instantiated more than once.
	inst, err := m.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", m.name, err)
	}
	defer inst.Close(ctx)

	results, err := inst.ExportedFunction(fn).Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", m.name, fn, err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return decodeResult(def.ResultTypes()[0], results[0]), nil
}

// Close frees the compiled code. Closing twice is a no-op.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.compiled.Close(ctx)
}

func encodeParams(fn string, types []api.ValueType, args []any) ([]uint64, error) {
	if len(args) != len(types) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Path(fn).
			Detail("expected %d arguments, got %d", len(types), len(args)).
			Build()
	}
	out := make([]uint64, len(args))
	for i, t := range types {
		var (
			iv    int64
			fv    float64
			isInt bool
		)
		switch v := args[i].(type) {
		case int64:
			iv, fv, isInt = v, float64(v), true
		case float64:
			fv = v
		case bool:
			if v {
				iv, fv = 1, 1
			}
			isInt = true
		default:
			return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
				Path(fn).
				Detail("argument %d: expected a number, got %T", i, args[i]).
				Build()
		}

		switch t {
		case api.ValueTypeI32, api.ValueTypeI64:
			if !isInt {
				return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
					Path(fn).
					Detail("argument %d: expected an integer for %s", i, api.ValueTypeName(t)).
					Build()
			}
			if t == api.ValueTypeI32 {
				out[i] = api.EncodeI32(int32(iv))
			} else {
				out[i] = api.EncodeI64(iv)
			}
		case api.ValueTypeF32:
			out[i] = api.EncodeF32(float32(fv))
		case api.ValueTypeF64:
			out[i] = api.EncodeF64(fv)
		default:
			return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
				Path(fn).
				Detail("argument %d: unsupported type %s", i, api.ValueTypeName(t)).
				Build()
		}
	}
	return out, nil
}

func decodeResult(t api.ValueType, v uint64) any {
	switch t {
	case api.ValueTypeI32:
		return int64(api.DecodeI32(v))
	case api.ValueTypeI64:
		return int64(v)
	case api.ValueTypeF32:
		return float64(api.DecodeF32(v))
	case api.ValueTypeF64:
		return api.DecodeF64(v)
	}
	return int64(v)
}
