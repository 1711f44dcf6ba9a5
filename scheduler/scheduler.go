// Package scheduler drives tasklets cooperatively on a single goroutine.
//
// Each Tick gives every unfinished tasklet one quantum in schedule order.
// Suspended tasklets whose native future has settled are resumed before
// their quantum, so a result is never skipped. Native work runs elsewhere;
// the interpreter itself never runs two tasklets at once.
package scheduler

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/tasklet-runtime/builtin"
	"github.com/wippyai/tasklet-runtime/code"
	"github.com/wippyai/tasklet-runtime/errors"
	"github.com/wippyai/tasklet-runtime/tasklet"
)

// Scheduler owns a set of tasklets and drives them tick by tick.
type Scheduler struct {
	ns       *builtin.Namespace
	logger   *zap.Logger
	entries  []*entry
	ticks    uint64
	quantum  int
	mu       sync.Mutex
	stepMode bool
}

type entry struct {
	t        *tasklet.Tasklet
	receipt  *Receipt
	reported bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithQuantum sets the instruction budget per tasklet per tick. Zero runs
// each tasklet until it yields, suspends, or completes.
func WithQuantum(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.quantum = n
		}
	}
}

// WithStepMode runs one instruction per tasklet per tick.
func WithStepMode(on bool) Option {
	return func(s *Scheduler) {
		s.stepMode = on
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scheduler whose tasklets resolve builtins in ns.
func New(ns *builtin.Namespace, opts ...Option) *Scheduler {
	if ns == nil {
		ns = builtin.NewNamespace()
	}
	s := &Scheduler{
		ns:     ns,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stepMode {
		s.quantum = 1
	}
	return s
}

// Namespace returns the builtin namespace shared by all tasklets.
func (s *Scheduler) Namespace() *builtin.Namespace {
	return s.ns
}

// Quantum returns the per-tick instruction budget; zero means unbounded.
func (s *Scheduler) Quantum() int {
	return s.quantum
}

// Schedule creates a Runnable tasklet for fn and enqueues it.
func (s *Scheduler) Schedule(fn *code.Callable, args ...any) (*Receipt, error) {
	t, err := tasklet.New(fn, s.ns, args...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Receipt{t: t, s: s}
	s.entries = append(s.entries, &entry{t: t, receipt: r})
	s.logger.Debug("tasklet scheduled",
		zap.String("tasklet", t.Name()),
		zap.Stringer("id", t.ID()))
	return r, nil
}

// Tick runs one scheduling round. It returns the escaped failures of every
// tasklet that completed during this tick, combined, or a context error if
// ctx was canceled mid-round.
//
// The first tick freezes the builtin namespace.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ns.Frozen() {
		s.ns.Freeze()
	}
	s.ticks++

	var escaped error
	for _, e := range s.entries {
		if e.t.State() == tasklet.Completed {
			continue
		}
		if err := s.runQuantum(ctx, e); err != nil {
			return multierr.Append(escaped, err)
		}
		if e.t.State() == tasklet.Completed && !e.reported {
			e.reported = true
			escaped = multierr.Append(escaped, s.finish(e))
		}
	}
	return escaped
}

// runQuantum resumes e if its native result is in and runs it for at most
// one quantum. A suspension on an already settled future is resumed and
// continued within the same quantum.
func (s *Scheduler) runQuantum(ctx context.Context, e *entry) error {
	remaining := s.quantum
	for {
		if e.t.State() == tasklet.Suspended {
			if !e.t.Poll() {
				return nil
			}
			s.logger.Debug("tasklet resumed",
				zap.String("tasklet", e.t.Name()),
				zap.Uint64("tick", s.ticks))
		}
		if e.t.State() == tasklet.Completed {
			return nil
		}
		if s.quantum > 0 && remaining <= 0 {
			return nil
		}

		res, err := e.t.Step(ctx, remaining)
		if err != nil {
			return err
		}
		if s.quantum > 0 {
			remaining -= res.Executed
		}
		if res.Status != tasklet.StepSuspended {
			return nil
		}
		s.logger.Debug("tasklet suspended",
			zap.String("tasklet", e.t.Name()),
			zap.String("builtin", e.t.Pending().Builtin),
			zap.Uint64("tick", s.ticks))
	}
}

func (s *Scheduler) finish(e *entry) error {
	if e.t.Abandoned() {
		return nil
	}
	_, failure := e.t.Result()
	if failure != nil {
		s.logger.Warn("tasklet failed",
			zap.String("tasklet", e.t.Name()),
			zap.Uint64("tick", s.ticks),
			zap.Error(failure))
		return failure
	}
	s.logger.Debug("tasklet completed",
		zap.String("tasklet", e.t.Name()),
		zap.Uint64("tick", s.ticks))
	return nil
}

// Done reports whether every scheduled tasklet has completed.
func (s *Scheduler) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.t.State() != tasklet.Completed {
			return false
		}
	}
	return true
}

// Runnable reports whether any tasklet can make progress without waiting
// on native work.
func (s *Scheduler) Runnable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		switch e.t.State() {
		case tasklet.Runnable:
			return true
		case tasklet.Suspended:
			if e.t.Pending().Future.Ready() {
				return true
			}
		}
	}
	return false
}

// Wait blocks until at least one suspended tasklet's native future settles,
// or ctx is done. It returns immediately when nothing is pending.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	var pending []<-chan struct{}
	for _, e := range s.entries {
		if e.t.State() == tasklet.Suspended {
			pending = append(pending, e.t.Pending().Future.Done())
		}
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	ready := make(chan struct{}, 1)
	stop := make(chan struct{})
	defer close(stop)
	for _, ch := range pending {
		go func(ch <-chan struct{}) {
			select {
			case <-ch:
				select {
				case ready <- struct{}{}:
				default:
				}
			case <-stop:
			}
		}(ch)
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunUntilDone ticks until every tasklet completes, waiting for native work
// whenever no tasklet can run. Escaped failures do not stop other tasklets;
// they are combined into the returned error.
func (s *Scheduler) RunUntilDone(ctx context.Context) error {
	var escaped error
	for !s.Done() {
		if err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return multierr.Append(escaped, err)
			}
			escaped = multierr.Append(escaped, err)
		}
		if !s.Done() && !s.Runnable() {
			if err := s.Wait(ctx); err != nil {
				return multierr.Append(escaped, err)
			}
		}
	}
	return escaped
}

// Abandon cancels the tasklet behind r. Its pending native operation may
// still complete; the result is discarded.
func (s *Scheduler) Abandon(r *Receipt) error {
	if r == nil || r.s != s {
		return errors.InvalidHandle(errors.PhaseSchedule, "", "receipt issued by another scheduler")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.t.State() == tasklet.Completed {
		return nil
	}
	r.t.Abandon()
	s.logger.Debug("tasklet abandoned", zap.String("tasklet", r.t.Name()))
	return nil
}

// Forget stops tracking the completed tasklet behind r. Its receipt keeps
// working, but the tasklet no longer appears in Tasklets or costs anything
// per tick. Forgetting an unfinished tasklet fails.
func (s *Scheduler) Forget(r *Receipt) error {
	if r == nil || r.s != s {
		return errors.InvalidHandle(errors.PhaseSchedule, "", "receipt issued by another scheduler")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.t.State() != tasklet.Completed {
		return errors.New(errors.PhaseSchedule, errors.KindInvalidState).
			Tasklet(r.t.Name()).
			Detail("tasklet is %s", r.t.State()).
			Build()
	}
	for i, e := range s.entries {
		if e.receipt == r {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// Prune forgets every completed tasklet and returns how many were removed.
func (s *Scheduler) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.t.State() != tasklet.Completed {
			kept = append(kept, e)
		}
	}
	n := len(s.entries) - len(kept)
	clear(s.entries[len(kept):])
	s.entries = kept
	return n
}

// TickCount returns the number of ticks run.
func (s *Scheduler) TickCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Tasklets returns receipts for all tasklets in schedule order.
func (s *Scheduler) Tasklets() []*Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Receipt, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.receipt
	}
	return out
}
