package runtime

import (
	"context"
	"io"
	"os"

	"github.com/samber/do"
	"go.uber.org/zap"

	"github.com/wippyai/tasklet-runtime/builtin"
	"github.com/wippyai/tasklet-runtime/code"
	"github.com/wippyai/tasklet-runtime/config"
	"github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/provider/file"
	"github.com/wippyai/tasklet-runtime/provider/timer"
	"github.com/wippyai/tasklet-runtime/provider/wasm"
	"github.com/wippyai/tasklet-runtime/resource"
	"github.com/wippyai/tasklet-runtime/scheduler"
)

// Runtime owns one scheduler, its builtin namespace and its resource
// registry.
type Runtime struct {
	injector *do.Injector
	cfg      *config.Config
	logger   *zap.Logger
	ns       *builtin.Namespace
	registry *resource.Registry
	sched    *scheduler.Scheduler
}

type options struct {
	providers map[resource.Kind]resource.Provider
	logger    *zap.Logger
	output    io.Writer
}

// Option configures a Runtime.
type Option func(*options)

// WithProvider installs p for kind in place of the configured provider.
func WithProvider(kind resource.Kind, p resource.Provider) Option {
	return func(o *options) {
		if o.providers == nil {
			o.providers = make(map[resource.Kind]resource.Provider)
		}
		o.providers[kind] = p
	}
}

// WithLogger uses l instead of building a logger from the configuration.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOutput directs print to w. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// New wires a runtime from cfg. A nil cfg uses config.Default.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{output: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	i := do.New()
	do.ProvideValue(i, cfg)
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		if o.logger != nil {
			return o.logger, nil
		}
		return NewLogger(cfg.Log)
	})
	do.Provide(i, func(i *do.Injector) (*builtin.Namespace, error) {
		ns := builtin.NewNamespace()
		if err := builtin.RegisterCore(ns, o.output); err != nil {
			return nil, err
		}
		return ns, nil
	})
	provideProviders(ctx, i, cfg, o.providers)
	do.Provide(i, newRegistry)
	do.Provide(i, func(i *do.Injector) (*scheduler.Scheduler, error) {
		ns, err := do.Invoke[*builtin.Namespace](i)
		if err != nil {
			return nil, err
		}
		logger, err := do.Invoke[*zap.Logger](i)
		if err != nil {
			return nil, err
		}
		// Builtins are published before the scheduler exists so the first
		// tick freezes a complete namespace.
		if _, err := do.Invoke[*resource.Registry](i); err != nil {
			return nil, err
		}
		return scheduler.New(ns,
			scheduler.WithQuantum(cfg.Scheduler.Quantum),
			scheduler.WithStepMode(cfg.Scheduler.StepMode),
			scheduler.WithLogger(logger.Named("scheduler")),
		), nil
	})

	rt := &Runtime{injector: i, cfg: cfg}
	var err error
	if rt.sched, err = do.Invoke[*scheduler.Scheduler](i); err != nil {
		_ = i.Shutdown()
		return nil, err
	}
	rt.logger = do.MustInvoke[*zap.Logger](i)
	rt.ns = do.MustInvoke[*builtin.Namespace](i)
	rt.registry = do.MustInvoke[*resource.Registry](i)

	rt.logger.Debug("runtime ready",
		zap.Int("quantum", rt.sched.Quantum()),
		zap.Strings("builtins", rt.ns.Names()))
	return rt, nil
}

// provideProviders registers one named provider service per enabled kind.
// Explicit providers take precedence over configuration.
func provideProviders(ctx context.Context, i *do.Injector, cfg *config.Config, explicit map[resource.Kind]resource.Provider) {
	for kind, p := range explicit {
		do.ProvideNamedValue[resource.Provider](i, kind.String(), p)
	}

	provide := func(kind resource.Kind, enabled bool, build func(*zap.Logger) (resource.Provider, error)) {
		if _, ok := explicit[kind]; ok || !enabled {
			return
		}
		do.ProvideNamed(i, kind.String(), func(i *do.Injector) (resource.Provider, error) {
			logger, err := do.Invoke[*zap.Logger](i)
			if err != nil {
				return nil, err
			}
			return build(logger.Named(kind.String()))
		})
	}

	provide(resource.KindFile, cfg.File.Enabled, func(l *zap.Logger) (resource.Provider, error) {
		opts := []file.Option{file.WithLogger(l), file.WithEncoding(cfg.File.Encoding)}
		if cfg.File.Root != "" {
			opts = append(opts, file.WithRoot(cfg.File.Root))
		}
		return file.New(opts...)
	})
	provide(resource.KindTimer, cfg.Timer.Enabled, func(l *zap.Logger) (resource.Provider, error) {
		return timer.New(timer.WithLogger(l)), nil
	})
	provide(resource.KindModule, cfg.Wasm.Enabled, func(l *zap.Logger) (resource.Provider, error) {
		return wasm.New(ctx, wasm.WithLogger(l), wasm.WithMemoryLimitPages(cfg.Wasm.MemoryLimitPages)), nil
	})
}

// newRegistry builds the registry, installs every provided kind and
// publishes the resource builtins.
func newRegistry(i *do.Injector) (*resource.Registry, error) {
	logger, err := do.Invoke[*zap.Logger](i)
	if err != nil {
		return nil, err
	}
	ns, err := do.Invoke[*builtin.Namespace](i)
	if err != nil {
		return nil, err
	}

	reg := resource.NewRegistry(resource.WithLogger(logger.Named("resource")))
	reg.Subscribe(&eventLogger{logger: logger.Named("resource")})

	for _, kind := range resource.Kinds() {
		if !isProvided(i, kind) {
			continue
		}
		p, err := do.InvokeNamed[resource.Provider](i, kind.String())
		if err != nil {
			_ = reg.Close()
			return nil, errors.Registration(kind.String()+" provider", err)
		}
		if err := reg.RegisterProvider(kind, p); err != nil {
			_ = reg.Close()
			return nil, err
		}
	}

	if err := reg.RegisterBuiltins(ns); err != nil {
		_ = reg.Close()
		return nil, err
	}
	return reg, nil
}

func isProvided(i *do.Injector, kind resource.Kind) bool {
	for _, name := range i.ListProvidedServices() {
		if name == kind.String() {
			return true
		}
	}
	return false
}

// Config returns the configuration the runtime was built from.
func (r *Runtime) Config() *config.Config { return r.cfg }

// Logger returns the runtime logger.
func (r *Runtime) Logger() *zap.Logger { return r.logger }

// Namespace returns the builtin namespace.
func (r *Runtime) Namespace() *builtin.Namespace { return r.ns }

// Registry returns the resource registry.
func (r *Runtime) Registry() *resource.Registry { return r.registry }

// Scheduler returns the scheduler.
func (r *Runtime) Scheduler() *scheduler.Scheduler { return r.sched }

// Schedule enqueues a tasklet running fn.
func (r *Runtime) Schedule(fn *code.Callable, args ...any) (*scheduler.Receipt, error) {
	return r.sched.Schedule(fn, args...)
}

// Load schedules one tasklet per entry callable of p, with no arguments.
func (r *Runtime) Load(p *code.Program) ([]*scheduler.Receipt, error) {
	entries, err := p.Entries()
	if err != nil {
		return nil, err
	}
	receipts := make([]*scheduler.Receipt, 0, len(entries))
	for _, fn := range entries {
		rc, err := r.sched.Schedule(fn)
		if err != nil {
			return receipts, err
		}
		receipts = append(receipts, rc)
	}
	return receipts, nil
}

// Tick runs one scheduling round.
func (r *Runtime) Tick(ctx context.Context) error {
	return r.sched.Tick(ctx)
}

// Run drives the scheduler until every tasklet completes.
func (r *Runtime) Run(ctx context.Context) error {
	err := r.sched.RunUntilDone(ctx)
	r.logger.Debug("run finished",
		zap.Uint64("ticks", r.sched.TickCount()),
		zap.Int("active_handles", r.registry.Len()),
		zap.Error(err))
	return err
}

// Close releases every resource still held and closes the providers.
func (r *Runtime) Close() error {
	err := r.injector.Shutdown()
	_ = r.logger.Sync()
	return err
}
