// Package timer provides the timer capability. sleep(seconds) suspends the
// calling tasklet until the delay elapses and resumes it with the elapsed
// seconds.
package timer

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/tasklet-runtime/builtin"
	"github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/future"
	"github.com/wippyai/tasklet-runtime/resource"
)

// sleeper is one pending timer.
type sleeper struct {
	start  time.Time
	timer  *time.Timer
	stop   func() bool
	future *future.Future
	handle resource.Handle
}

// Provider implements sleep with time.AfterFunc.
type Provider struct {
	logger  *zap.Logger
	pending map[uint64]*sleeper
	mu      sync.Mutex
	closed  bool
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a timer provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		logger:  zap.NewNop(),
		pending: make(map[uint64]*sleeper),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire starts a timer for args[0] seconds.
func (p *Provider) Acquire(ctx context.Context, h resource.Handle, args []any) *future.Future {
	d, err := duration(args)
	if err != nil {
		return future.Failed(err)
	}

	s := &sleeper{
		start:  time.Now(),
		future: future.New(),
		handle: h,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return future.Failed(errors.Closed(errors.PhaseAcquire, "timer provider"))
	}
	p.pending[h.Descriptor()] = s
	s.timer = time.AfterFunc(d, func() { p.fire(s) })
	s.stop = context.AfterFunc(ctx, func() { p.cancel(s, ctx.Err()) })
	p.mu.Unlock()

	p.logger.Debug("sleep", zap.Uint64("descriptor", h.Descriptor()), zap.Duration("delay", d))
	return s.future
}

func duration(args []any) (time.Duration, error) {
	if len(args) != 1 {
		return 0, errors.InvalidInput(errors.PhaseAcquire, "sleep expects (seconds)")
	}
	var secs float64
	switch v := args[0].(type) {
	case int64:
		secs = float64(v)
	case float64:
		secs = v
	default:
		return 0, errors.New(errors.PhaseAcquire, errors.KindInvalidInput).
			Path("sleep").
			Detail("seconds must be a number, got %T", args[0]).
			Build()
	}
	if secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, errors.New(errors.PhaseAcquire, errors.KindInvalidInput).
			Path("sleep").
			Detail("invalid delay %v", secs).
			Build()
	}
	ns := secs * float64(time.Second)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64), nil
	}
	return time.Duration(ns), nil
}

// take removes s from the pending set and reports whether the caller won
// the race to settle it.
func (p *Provider) take(s *sleeper) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := s.handle.Descriptor()
	if p.pending[d] != s {
		return false
	}
	delete(p.pending, d)
	return true
}

func (p *Provider) fire(s *sleeper) {
	if !p.take(s) {
		return
	}
	s.stop()
	_ = s.future.Resolve(time.Since(s.start).Seconds())
}

func (p *Provider) cancel(s *sleeper, cause error) {
	if !p.take(s) {
		return
	}
	s.timer.Stop()
	_ = s.future.Reject(cause)
}

// Pending returns the number of timers that have not fired.
func (p *Provider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Ephemeral reports that a timer handle ends when the timer fires.
func (p *Provider) Ephemeral() bool { return true }

// PublishBuiltins adds nothing; sleep is the registry's acquisition builtin.
func (p *Provider) PublishBuiltins(*builtin.Namespace) error {
	return nil
}

// Close rejects every pending timer.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pending := p.pending
	p.pending = make(map[uint64]*sleeper)
	p.mu.Unlock()

	for _, s := range pending {
		s.timer.Stop()
		s.stop()
		_ = s.future.Reject(errors.Closed(errors.PhaseAcquire, "timer provider"))
	}
	if len(pending) > 0 {
		p.logger.Debug("rejected pending timers", zap.Int("count", len(pending)))
	}
	return nil
}
