package resource

import (
	"context"
	"io"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/tasklet-runtime/builtin"
	"github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/future"
)

// Registry issues handles, routes acquisitions to providers, and tracks every
// live handle until it is released or the registry is closed.
type Registry struct {
	table     *table
	providers map[Kind]Provider
	logger    *zap.Logger
	observers []Observer
	provMu    sync.RWMutex
	obsMu     sync.RWMutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		table:     newTable(),
		providers: make(map[Kind]Provider),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterProvider installs p as the provider for kind. A kind has at most
// one provider; a second registration fails and leaves the first in place.
func (r *Registry) RegisterProvider(kind Kind, p Provider) error {
	if p == nil {
		return errors.InvalidInput(errors.PhaseRegister, "nil provider for "+kind.String())
	}
	if !kind.Known() {
		return errors.InvalidInput(errors.PhaseRegister, "unknown resource kind "+kind.String())
	}
	if r.table.isClosed() {
		return errors.Closed(errors.PhaseRegister, "registry")
	}

	r.provMu.Lock()
	defer r.provMu.Unlock()

	if _, exists := r.providers[kind]; exists {
		return errors.DuplicateProvider(kind.String())
	}
	r.providers[kind] = p
	r.logger.Debug("provider registered", zap.Stringer("kind", kind))
	return nil
}

// Provider returns the provider registered for kind.
func (r *Registry) Provider(kind Kind) (Provider, bool) {
	r.provMu.RLock()
	defer r.provMu.RUnlock()
	p, ok := r.providers[kind]
	return p, ok
}

// Acquire issues a new handle for kind and asks the provider to produce the
// resource. A missing provider or a closed registry fails synchronously.
// Provider failures settle the returned future with a native failure, and
// the handle is dropped without ever becoming active.
func (r *Registry) Acquire(ctx context.Context, kind Kind, args ...any) (Handle, *future.Future, error) {
	if r.table.isClosed() {
		return Handle{}, nil, errors.Closed(errors.PhaseAcquire, "registry")
	}
	p, ok := r.Provider(kind)
	if !ok {
		return Handle{}, nil, errors.MissingProvider(kind.String())
	}

	d, ok := r.table.issue(kind)
	if !ok {
		return Handle{}, nil, errors.Closed(errors.PhaseAcquire, "registry")
	}
	h := Handle{registry: r, descriptor: d}
	desc := Describe(kind, h)

	r.logger.Debug("acquire", zap.Stringer("kind", kind), zap.Uint64("descriptor", d))
	r.notify(Event{Type: EventAcquired, Handle: h, Kind: kind})

	inner := p.Acquire(ctx, h, args)
	if inner == nil {
		inner = future.Failed(errors.InvalidState(errors.PhaseAcquire, "provider returned no future"))
	}

	out := future.New()
	inner.OnSettle(func(v any, err error) {
		if err != nil {
			err = nativeFailure(desc, err)
			r.table.remove(d, true)
			r.logger.Debug("acquire failed", zap.String("resource", desc), zap.Error(err))
			r.notify(Event{Type: EventAcquireFailed, Handle: h, Kind: kind, Err: err})
			_ = out.Reject(err)
			return
		}
		if r.table.resolve(d, v) {
			r.notify(Event{Type: EventResolved, Handle: h, Kind: kind, Value: v})
			if e, ok := p.(Ephemeral); ok && e.Ephemeral() {
				if err := r.Release(h); err != nil {
					r.logger.Debug("release ephemeral", zap.String("resource", desc), zap.Error(err))
				}
			}
		}
		_ = out.Resolve(v)
	})
	return h, out, nil
}

func nativeFailure(desc string, err error) error {
	if errors.HasKind(err, errors.KindNativeFailure) {
		return err
	}
	return errors.NativeFailure(desc, err)
}

// Release stops tracking h. Releasing an unknown or already released handle
// fails, as does releasing a handle whose acquisition is still in flight.
func (r *Registry) Release(h Handle) error {
	if h.registry != r {
		return errors.InvalidHandle(errors.PhaseRelease, h.String(), "handle issued by another registry")
	}

	e, res := r.table.remove(h.descriptor, false)
	switch res {
	case removeMissing:
		return errors.InvalidHandle(errors.PhaseRelease, h.String(), "handle is not active")
	case removePending:
		return errors.InvalidState(errors.PhaseRelease, "acquisition of "+Describe(e.kind, h)+" in flight")
	}

	r.logger.Debug("release", zap.Stringer("kind", e.kind), zap.Uint64("descriptor", h.descriptor))
	r.notify(Event{Type: EventReleased, Handle: h, Kind: e.kind, Value: e.value})
	return nil
}

// Lookup returns the tracking entry for a descriptor.
func (r *Registry) Lookup(descriptor uint64) (Entry, bool) {
	e, ok := r.table.get(descriptor)
	if !ok {
		return Entry{}, false
	}
	return Entry{
		Handle:  Handle{registry: r, descriptor: descriptor},
		Kind:    e.kind,
		Value:   e.value,
		Pending: e.pending,
	}, true
}

// Active returns all tracked handles in issue order.
func (r *Registry) Active() []Entry {
	ds, es := r.table.snapshot()
	out := make([]Entry, len(ds))
	for i, d := range ds {
		out[i] = Entry{
			Handle:  Handle{registry: r, descriptor: d},
			Kind:    es[i].kind,
			Value:   es[i].value,
			Pending: es[i].pending,
		}
	}
	return out
}

// Len returns the number of tracked handles.
func (r *Registry) Len() int {
	return r.table.len()
}

// RegisterBuiltins publishes the acquisition builtin of every known kind and
// then each registered provider's own builtins. Acquisition builtins exist
// even without a provider so calling them reports the missing provider.
func (r *Registry) RegisterBuiltins(ns *builtin.Namespace) error {
	for _, kind := range Kinds() {
		err := ns.AddAsync(kind.Builtin(), builtin.Variadic, func(ctx context.Context, args []any) (*future.Future, error) {
			_, f, err := r.Acquire(ctx, kind, args...)
			return f, err
		})
		if err != nil {
			return errors.Registration("builtin "+kind.Builtin(), err)
		}
	}

	for _, kind := range Kinds() {
		p, ok := r.Provider(kind)
		if !ok {
			continue
		}
		if err := p.PublishBuiltins(ns); err != nil {
			return errors.Registration(kind.String()+" provider builtins", err)
		}
	}
	return nil
}

// Subscribe adds an observer for lifecycle events.
func (r *Registry) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer.
func (r *Registry) Unsubscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for i, obs := range r.observers {
		if obs == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// Close sweeps every tracked handle, then closes providers that implement
// io.Closer. Further acquisitions fail. Close is idempotent.
func (r *Registry) Close() error {
	ds, es := r.table.drain()
	for i, d := range ds {
		h := Handle{registry: r, descriptor: d}
		r.notify(Event{Type: EventReleased, Handle: h, Kind: es[i].kind, Value: es[i].value})
	}
	if len(ds) > 0 {
		r.logger.Debug("swept active handles", zap.Int("count", len(ds)))
	}

	var err error
	r.provMu.Lock()
	providers := r.providers
	r.providers = make(map[Kind]Provider)
	r.provMu.Unlock()

	for _, kind := range Kinds() {
		if c, ok := providers[kind].(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

// Shutdown closes the registry when it is owned by a DI container.
func (r *Registry) Shutdown() error {
	return r.Close()
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		o.OnResourceEvent(e)
	}
}
