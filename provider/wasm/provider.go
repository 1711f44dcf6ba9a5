// Package wasm provides the WebAssembly module capability backed by wazero.
//
// load_wasm(path) compiles a core module off the interpreter goroutine and
// produces a Module. wasm_exports lists its exported functions, wasm_call
// runs one in a fresh instance, and wasm_close frees the compiled code and
// releases the handle.
package wasm

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/future"
	"github.com/wippyai/tasklet-runtime/resource"
)

// Provider compiles modules into a single wazero runtime.
type Provider struct {
	runtime wazero.Runtime
	logger  *zap.Logger
	modules map[uint64]*Module
	mu      sync.Mutex
	closed  bool
}

type options struct {
	logger           *zap.Logger
	memoryLimitPages uint32
}

// Option configures a Provider.
type Option func(*options)

// WithLogger sets the provider logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMemoryLimitPages caps linear memory of instantiated modules, in 64KiB
// pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(o *options) { o.memoryLimitPages = pages }
}

// New creates a provider with its own wazero runtime.
func New(ctx context.Context, opts ...Option) *Provider {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if o.memoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(o.memoryLimitPages)
	}

	return &Provider{
		runtime: wazero.NewRuntimeWithConfig(ctx, cfg),
		logger:  o.logger,
		modules: make(map[uint64]*Module),
	}
}

// Acquire reads and compiles the module at args[0].
func (p *Provider) Acquire(ctx context.Context, h resource.Handle, args []any) *future.Future {
	if len(args) != 1 {
		return future.Failed(errors.InvalidInput(errors.PhaseAcquire, "load_wasm expects (path)"))
	}
	path, ok := args[0].(string)
	if !ok || path == "" {
		return future.Failed(errors.InvalidInput(errors.PhaseAcquire, "module path must be a non-empty string"))
	}

	return future.Go(ctx, func(ctx context.Context) (any, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return p.compile(ctx, h, path, data)
	})
}

func (p *Provider) compile(ctx context.Context, h resource.Handle, name string, data []byte) (*Module, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errors.Closed(errors.PhaseAcquire, "wasm provider")
	}

	compiled, err := p.runtime.CompileModule(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	m := &Module{compiled: compiled, runtime: p.runtime, handle: h, name: name}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = compiled.Close(context.Background())
		return nil, errors.Closed(errors.PhaseAcquire, "wasm provider")
	}
	p.modules[h.Descriptor()] = m
	p.mu.Unlock()

	p.logger.Debug("module compiled",
		zap.String("name", name),
		zap.Uint64("descriptor", h.Descriptor()),
		zap.Int("exports", len(compiled.ExportedFunctions())))
	return m, nil
}

// closeModule frees m and stops tracking it.
func (p *Provider) closeModule(ctx context.Context, m *Module) error {
	p.mu.Lock()
	delete(p.modules, m.Descriptor())
	p.mu.Unlock()
	return m.Close(ctx)
}

// Loaded returns the number of modules not yet closed.
func (p *Provider) Loaded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.modules)
}

// Close frees every loaded module and the runtime.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	modules := p.modules
	p.modules = make(map[uint64]*Module)
	p.mu.Unlock()

	ctx := context.Background()
	var err error
	for _, m := range modules {
		err = multierr.Append(err, m.Close(ctx))
	}
	return multierr.Append(err, p.runtime.Close(ctx))
}
