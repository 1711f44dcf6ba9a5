// Package resource provides native resource handle management for tasklets.
//
// Interpreted code never touches native resources directly. It calls an
// acquisition builtin (open, sleep, load_wasm), and the Registry issues a
// Handle, routes the request to the Provider registered for that capability
// kind, and tracks the handle until it is released.
//
// # Handles
//
// A Handle is an immutable (descriptor, registry) pair. Descriptors start at
// 1 and are never reused, even after release or a failed acquisition:
//
//	reg := resource.NewRegistry()
//	_ = reg.RegisterProvider(resource.KindFile, fileProvider)
//
//	h, fut, err := reg.Acquire(ctx, resource.KindFile, "data.txt", "r")
//	// err is synchronous: missing provider, closed registry
//	// fut settles with the stream or a native failure
//
//	_ = h.Release()
//
// # Providers
//
// One provider serves each kind. Acquire returns a future so providers may
// do blocking work off the interpreter goroutine. PublishBuiltins adds the
// operations that act on produced resources (readline, write, fileno, ...).
// Providers that implement io.Closer are closed when the registry closes.
//
// # Observers
//
// Register observers to track handle lifecycle events:
//
//	reg.Subscribe(myObserver)
//
// Events are EventAcquired, EventResolved, EventAcquireFailed and
// EventReleased. Close reports EventReleased for every handle still tracked.
package resource
