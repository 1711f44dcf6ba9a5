package resource

import (
	"context"
	"strconv"

	"github.com/wippyai/tasklet-runtime/builtin"
	"github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/future"
)

// Handle is an immutable reference to a native resource issued by a Registry.
// Descriptor 0 is reserved and always invalid.
//
// A Handle does not own the resource; the provider that produced it does.
type Handle struct {
	registry   *Registry
	descriptor uint64
}

// Descriptor returns the integer id, unique within the issuing registry.
func (h Handle) Descriptor() uint64 {
	return h.descriptor
}

// Registry returns the issuing registry.
func (h Handle) Registry() *Registry {
	return h.registry
}

// Valid reports whether the issuing registry still tracks the handle.
func (h Handle) Valid() bool {
	if h.registry == nil || h.descriptor == 0 {
		return false
	}
	_, ok := h.registry.Lookup(h.descriptor)
	return ok
}

// Release stops tracking the handle in its registry.
func (h Handle) Release() error {
	if h.registry == nil {
		return errors.InvalidHandle(errors.PhaseRelease, h.String(), "handle has no registry")
	}
	return h.registry.Release(h)
}

func (h Handle) String() string {
	return "#" + strconv.FormatUint(h.descriptor, 10)
}

// Provider implements one capability kind.
type Provider interface {
	// Acquire produces the native resource for h. Domain failures settle the
	// future with an error; the registry reports them as native failures.
	Acquire(ctx context.Context, h Handle, args []any) *future.Future

	// PublishBuiltins adds the provider's operations on its resources.
	PublishBuiltins(ns *builtin.Namespace) error
}

// Ephemeral is implemented by providers whose resources end when their
// acquisition resolves. The registry releases such handles right after
// resolving them.
type Ephemeral interface {
	Ephemeral() bool
}

// Entry is the registry's view of a tracked handle.
type Entry struct {
	Value   any
	Handle  Handle
	Kind    Kind
	Pending bool
}

// EventType identifies a handle lifecycle notification.
type EventType uint8

const (
	EventAcquired EventType = iota
	EventResolved
	EventAcquireFailed
	EventReleased
)

func (t EventType) String() string {
	switch t {
	case EventAcquired:
		return "acquired"
	case EventResolved:
		return "resolved"
	case EventAcquireFailed:
		return "acquire_failed"
	case EventReleased:
		return "released"
	}
	return "unknown"
}

// Event represents a handle lifecycle event.
type Event struct {
	Value  any
	Err    error
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}
