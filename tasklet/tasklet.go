package tasklet

import (
	"context"

	"github.com/google/uuid"

	"github.com/wippyai/tasklet-runtime/builtin"
	"github.com/wippyai/tasklet-runtime/code"
	"github.com/wippyai/tasklet-runtime/errors"
)

// ctxCheckInterval is how many instructions run between context checks.
const ctxCheckInterval = 256

type block struct {
	handler int
	depth   int
}

type frame struct {
	fn     *code.Callable
	locals []any
	stack  []any
	blocks []block
	pc     int
}

// Tasklet is a lightweight interpreted thread of execution.
//
// A tasklet is not safe for concurrent use; the scheduler that owns it
// serializes all calls.
type Tasklet struct {
	ns        *builtin.Namespace
	pending   *Pending
	result    any
	failure   error
	name      string
	frames    []*frame
	executed  uint64
	id        uuid.UUID
	state     State
	abandoned bool
}

// New creates a Runnable tasklet whose first frame runs entry with args.
func New(entry *code.Callable, ns *builtin.Namespace, args ...any) (*Tasklet, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if ns == nil {
		ns = builtin.NewNamespace()
	}

	t := &Tasklet{
		id:   uuid.New(),
		name: entry.Name,
		ns:   ns,
	}
	fr, err := newFrame(entry, args)
	if err != nil {
		return nil, errors.New(errors.PhaseSchedule, errors.KindInvalidInput).
			Tasklet(t.name).
			Cause(err).
			Detail("cannot bind entry arguments").
			Build()
	}
	t.frames = []*frame{fr}
	return t, nil
}

func newFrame(fn *code.Callable, args []any) (*frame, error) {
	if len(args) != fn.Arity {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Path(fn.Name).
			Detail("expected %d arguments, got %d", fn.Arity, len(args)).
			Build()
	}
	locals := make([]any, fn.Locals)
	for i, a := range args {
		v, err := code.NormalizeValue(a)
		if err != nil {
			return nil, err
		}
		locals[i] = v
	}
	return &frame{fn: fn, locals: locals}, nil
}

// ID returns the tasklet's unique id.
func (t *Tasklet) ID() uuid.UUID { return t.id }

// Name returns the entry callable's name.
func (t *Tasklet) Name() string { return t.name }

// State returns the current lifecycle state.
func (t *Tasklet) State() State { return t.state }

// Pending returns the operation a suspended tasklet waits on.
func (t *Tasklet) Pending() *Pending { return t.pending }

// Executed returns the number of instructions run so far.
func (t *Tasklet) Executed() uint64 { return t.executed }

// Abandoned reports whether the tasklet was abandoned before completing.
func (t *Tasklet) Abandoned() bool { return t.abandoned }

// Result returns the completion value and escaped failure. Both are nil
// until the tasklet is Completed.
func (t *Tasklet) Result() (any, error) {
	return t.result, t.failure
}

// Depth returns the number of frames on the stack.
func (t *Tasklet) Depth() int { return len(t.frames) }

// Step runs instructions until the tasklet yields, suspends, completes, or
// has executed budget instructions. A budget of zero or less runs until one
// of the other conditions.
//
// Stepping a Completed tasklet does nothing. Stepping a Suspended tasklet is
// an error: its result has not been injected yet.
func (t *Tasklet) Step(ctx context.Context, budget int) (StepResult, error) {
	var res StepResult
	switch t.state {
	case Completed:
		res.Status = StepCompleted
		return res, nil
	case Suspended:
		return res, errors.New(errors.PhaseRuntime, errors.KindInvalidState).
			Tasklet(t.name).
			Detail("tasklet is suspended on %s", t.pending.Builtin).
			Build()
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	ctx = WithTasklet(ctx, t)

	for budget <= 0 || res.Executed < budget {
		if res.Executed > 0 && res.Executed%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}

		fr := t.frames[len(t.frames)-1]
		if fr.pc >= len(fr.fn.Code) {
			t.doReturn(nil)
		} else {
			in := fr.fn.Code[fr.pc]
			fr.pc++
			res.Executed++
			t.executed++

			yield, err := t.exec(ctx, fr, in)
			if err != nil {
				t.raise(err)
			}
			if yield && t.state == Runnable {
				res.Status = StepYield
				return res, nil
			}
		}

		switch t.state {
		case Suspended:
			res.Status = StepSuspended
			return res, nil
		case Completed:
			res.Status = StepCompleted
			return res, nil
		}
	}
	res.Status = StepBudget
	return res, nil
}

// exec runs one instruction. It reports whether the instruction was YIELD.
func (t *Tasklet) exec(ctx context.Context, fr *frame, in code.Instr) (bool, error) {
	switch in.Op {
	case code.OpNop:
	case code.OpLoadConst:
		fr.push(fr.fn.Consts[in.Arg])
	case code.OpLoadLocal:
		fr.push(fr.locals[in.Arg])
	case code.OpStoreLocal:
		v, err := fr.pop()
		if err != nil {
			return false, err
		}
		fr.locals[in.Arg] = v
	case code.OpLoadBuiltin:
		name := fr.fn.Names[in.Arg]
		f, ok := t.ns.Lookup(name)
		if !ok {
			return false, errors.NotFound(errors.PhaseRuntime, "builtin", name)
		}
		fr.push(f)
	case code.OpCall:
		return false, t.call(ctx, fr, in.Arg)
	case code.OpReturn:
		v, _ := fr.pop()
		t.doReturn(v)
	case code.OpPop:
		_, err := fr.pop()
		return false, err
	case code.OpDup:
		v, err := fr.top()
		if err != nil {
			return false, err
		}
		fr.push(v)
	case code.OpJump:
		fr.pc = in.Arg
	case code.OpJumpIfFalse:
		v, err := fr.pop()
		if err != nil {
			return false, err
		}
		if !truthy(v) {
			fr.pc = in.Arg
		}
	case code.OpSetupExcept:
		fr.blocks = append(fr.blocks, block{handler: in.Arg, depth: len(fr.stack)})
	case code.OpPopBlock:
		if len(fr.blocks) == 0 {
			return false, errors.InvalidState(errors.PhaseRuntime, "POP_BLOCK without handler block")
		}
		fr.blocks = fr.blocks[:len(fr.blocks)-1]
	case code.OpRaise:
		v, err := fr.pop()
		if err != nil {
			return false, err
		}
		if failure, ok := v.(error); ok {
			return false, failure
		}
		return false, errors.Raised(v)
	case code.OpYield:
		return true, nil
	case code.OpAdd, code.OpLess, code.OpEqual:
		b, err := fr.pop()
		if err != nil {
			return false, err
		}
		a, err := fr.pop()
		if err != nil {
			return false, err
		}
		var v any
		switch in.Op {
		case code.OpAdd:
			v, err = add(a, b)
		case code.OpLess:
			v, err = less(a, b)
		default:
			v = equal(a, b)
		}
		if err != nil {
			return false, err
		}
		fr.push(v)
	default:
		return false, errors.InvalidInput(errors.PhaseRuntime, "unknown opcode "+in.Op.String())
	}
	return false, nil
}

func (t *Tasklet) call(ctx context.Context, fr *frame, n int) error {
	if len(fr.stack) < n+1 {
		return errors.InvalidState(errors.PhaseRuntime, "stack underflow in CALL")
	}
	base := len(fr.stack) - n - 1
	callee := fr.stack[base]
	args := append([]any(nil), fr.stack[base+1:]...)
	fr.stack = fr.stack[:base]

	switch fn := callee.(type) {
	case *code.Callable:
		if err := fn.Validate(); err != nil {
			return err
		}
		next, err := newFrame(fn, args)
		if err != nil {
			return err
		}
		t.frames = append(t.frames, next)
		return nil

	case *builtin.Func:
		if err := fn.CheckArity(n); err != nil {
			return err
		}
		if fn.Async == nil {
			v, err := fn.Call(ctx, args)
			if err != nil {
				return err
			}
			out, err := code.NormalizeValue(v)
			if err != nil {
				return err
			}
			fr.push(out)
			return nil
		}

		fut, err := fn.Async(ctx, args)
		if err != nil {
			return err
		}
		if fut == nil {
			return errors.InvalidState(errors.PhaseRuntime, "builtin "+fn.Name+" returned no future")
		}
		t.pending = &Pending{
			Future:  fut,
			Builtin: fn.Name,
			Frame:   len(t.frames) - 1,
			PC:      fr.pc - 1,
		}
		t.state = Suspended
		return nil
	}

	return errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
		Value(callee).
		Detail("%s is not callable", code.Repr(callee)).
		Build()
}

func (t *Tasklet) doReturn(v any) {
	t.frames = t.frames[:len(t.frames)-1]
	if len(t.frames) == 0 {
		t.complete(v, nil)
		return
	}
	t.frames[len(t.frames)-1].push(v)
}

// raise unwinds frames until a handler block catches failure. Past the
// bottom frame the tasklet completes with an escaped failure that keeps
// failure as its cause.
func (t *Tasklet) raise(failure error) {
	for len(t.frames) > 0 {
		fr := t.frames[len(t.frames)-1]
		if n := len(fr.blocks); n > 0 {
			b := fr.blocks[n-1]
			fr.blocks = fr.blocks[:n-1]
			fr.stack = fr.stack[:min(b.depth, len(fr.stack))]
			fr.push(failure)
			fr.pc = b.handler
			return
		}
		t.frames = t.frames[:len(t.frames)-1]
	}
	t.complete(nil, errors.Escaped(t.name, failure))
}

func (t *Tasklet) complete(v any, failure error) {
	t.frames = nil
	t.pending = nil
	t.result = v
	t.failure = failure
	t.state = Completed
}

// Resume injects the result of the pending operation p at the call site
// that suspended the tasklet. A failure is raised there exactly as an
// interpreted failure would be.
//
// p must be the operation the tasklet is currently suspended on, as
// returned by Pending. Any other value, including an operation that was
// already answered, is rejected. Resuming an abandoned tasklet does nothing.
func (t *Tasklet) Resume(p *Pending, v any, failure error) error {
	if t.abandoned {
		return nil
	}
	if t.state != Suspended {
		return errors.New(errors.PhaseResume, errors.KindInvalidHandle).
			Tasklet(t.name).
			Detail("tasklet is %s, not suspended", t.state).
			Build()
	}
	if p == nil || p != t.pending {
		return errors.New(errors.PhaseResume, errors.KindInvalidHandle).
			Tasklet(t.name).
			Detail("result does not answer the pending %s", t.pending.Builtin).
			Build()
	}

	t.pending = nil
	t.state = Runnable

	if p.Frame != len(t.frames)-1 {
		t.raise(errors.InvalidState(errors.PhaseResume, "suspension frame is not on top"))
		return nil
	}
	if failure != nil {
		t.raise(failure)
		return nil
	}
	n, err := code.NormalizeValue(v)
	if err != nil {
		t.raise(err)
		return nil
	}
	t.frames[p.Frame].push(n)
	return nil
}

// Poll resumes the tasklet if its pending operation has settled. It reports
// whether a result was injected.
func (t *Tasklet) Poll() bool {
	if t.state != Suspended || t.pending == nil || !t.pending.Future.Ready() {
		return false
	}
	v, err := t.pending.Future.Result()
	return t.Resume(t.pending, v, err) == nil
}

// Abandon cancels the tasklet. It completes with no result and any native
// result that arrives later is discarded.
func (t *Tasklet) Abandon() {
	if t.state == Completed {
		return
	}
	t.abandoned = true
	t.complete(nil, nil)
}

func (fr *frame) push(v any) {
	fr.stack = append(fr.stack, v)
}

func (fr *frame) pop() (any, error) {
	n := len(fr.stack)
	if n == 0 {
		return nil, errors.InvalidState(errors.PhaseRuntime, "stack underflow in "+fr.fn.Name)
	}
	v := fr.stack[n-1]
	fr.stack = fr.stack[:n-1]
	return v, nil
}

func (fr *frame) top() (any, error) {
	if len(fr.stack) == 0 {
		return nil, errors.InvalidState(errors.PhaseRuntime, "stack underflow in "+fr.fn.Name)
	}
	return fr.stack[len(fr.stack)-1], nil
}
