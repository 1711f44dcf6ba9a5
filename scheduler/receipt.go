package scheduler

import (
	"github.com/google/uuid"

	"github.com/wippyai/tasklet-runtime/tasklet"
)

// Receipt is the creator's reference to a scheduled tasklet.
type Receipt struct {
	t *tasklet.Tasklet
	s *Scheduler
}

// ID returns the tasklet id.
func (r *Receipt) ID() uuid.UUID {
	return r.t.ID()
}

// Name returns the tasklet's entry callable name.
func (r *Receipt) Name() string {
	return r.t.Name()
}

// State returns the tasklet's current state.
func (r *Receipt) State() tasklet.State {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.t.State()
}

// Completed reports whether the tasklet has finished.
func (r *Receipt) Completed() bool {
	return r.State() == tasklet.Completed
}

// Abandoned reports whether the tasklet was abandoned.
func (r *Receipt) Abandoned() bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.t.Abandoned()
}

// Result returns the completion value and escaped failure.
func (r *Receipt) Result() (any, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.t.Result()
}

// Snapshot returns a copy of the tasklet's frames and state.
func (r *Receipt) Snapshot() tasklet.Snapshot {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.t.Snapshot()
}
