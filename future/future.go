// Package future provides the in-flight result of a native operation.
//
// A Future settles exactly once, either with a value or with a failure. The
// scheduler polls Ready between ticks and blocks on Done when every tasklet is
// waiting on native work.
package future

import (
	"context"
	"sync"

	"github.com/wippyai/tasklet-runtime/errors"
)

// Future is a pending native operation result.
type Future struct {
	value     any
	err       error
	done      chan struct{}
	callbacks []func(any, error)
	mu        sync.Mutex
	settled   bool
	ready     bool
}

// New creates an unsettled future.
func New() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved creates a future already settled with v.
func Resolved(v any) *Future {
	f := New()
	_ = f.Resolve(v)
	return f
}

// Failed creates a future already settled with err.
func Failed(err error) *Future {
	f := New()
	_ = f.Reject(err)
	return f
}

// Go runs fn on its own goroutine and settles the returned future with its result.
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) *Future {
	f := New()
	go func() {
		v, err := fn(ctx)
		if err != nil {
			_ = f.Reject(err)
			return
		}
		_ = f.Resolve(v)
	}()
	return f
}

// Resolve settles the future with a value.
func (f *Future) Resolve(v any) error {
	return f.settle(v, nil)
}

// Reject settles the future with a failure. A nil err is rejected.
func (f *Future) Reject(err error) error {
	if err == nil {
		return errors.InvalidInput(errors.PhaseResume, "reject with nil error")
	}
	return f.settle(nil, err)
}

func (f *Future) settle(v any, err error) error {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return errors.InvalidHandle(errors.PhaseResume, "", "future already settled")
	}
	f.settled = true
	f.value = v
	f.err = err
	cbs := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	// Callbacks observe the result before anyone polling Ready does.
	for _, cb := range cbs {
		cb(v, err)
	}

	f.mu.Lock()
	f.ready = true
	close(f.done)
	f.mu.Unlock()
	return nil
}

// OnSettle registers cb to run once the future settles. If it has already
// settled, cb runs immediately on the calling goroutine.
func (f *Future) OnSettle(cb func(any, error)) {
	f.mu.Lock()
	if f.settled {
		v, err := f.value, f.err
		f.mu.Unlock()
		cb(v, err)
		return
	}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
}

// Ready reports whether the result is available.
func (f *Future) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

// Result returns the settled value and failure. It must only be called once
// Ready reports true; before that it returns an invalid-state error.
func (f *Future) Result() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ready {
		return nil, errors.InvalidState(errors.PhaseResume, "future not settled")
	}
	return f.value, f.err
}

// Done returns a channel closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is canceled.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
