package tasklet

import (
	"github.com/google/uuid"

	"github.com/wippyai/tasklet-runtime/code"
)

// FrameInfo is a copy of one frame for inspection.
type FrameInfo struct {
	Callable *code.Callable
	Locals   []any
	Stack    []any
	PC       int
	Handlers int
}

// Snapshot is a copy of a tasklet's observable state.
type Snapshot struct {
	Result   any
	Failure  error
	Pending  *Pending
	Name     string
	Frames   []FrameInfo
	Executed uint64
	ID       uuid.UUID
	State    State
}

// Snapshot copies the tasklet's frames, bottom first, along with its state.
func (t *Tasklet) Snapshot() Snapshot {
	s := Snapshot{
		ID:       t.id,
		Name:     t.name,
		State:    t.state,
		Executed: t.executed,
		Result:   t.result,
		Failure:  t.failure,
	}
	if t.pending != nil {
		p := *t.pending
		s.Pending = &p
	}
	s.Frames = make([]FrameInfo, len(t.frames))
	for i, fr := range t.frames {
		s.Frames[i] = FrameInfo{
			Callable: fr.fn,
			PC:       fr.pc,
			Locals:   append([]any(nil), fr.locals...),
			Stack:    append([]any(nil), fr.stack...),
			Handlers: len(fr.blocks),
		}
	}
	return s
}
