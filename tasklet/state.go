package tasklet

import "github.com/wippyai/tasklet-runtime/future"

// State is the lifecycle state of a tasklet.
type State uint8

const (
	Runnable State = iota
	Suspended
	Completed
)

func (s State) String() string {
	switch s {
	case Runnable:
		return "runnable"
	case Suspended:
		return "suspended"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Status reports why Step returned.
type Status uint8

const (
	// StepBudget means the instruction budget ran out.
	StepBudget Status = iota
	// StepYield means the tasklet executed YIELD.
	StepYield
	// StepSuspended means the tasklet is waiting on a native operation.
	StepSuspended
	// StepCompleted means the tasklet finished, normally or with an escaped failure.
	StepCompleted
)

func (s Status) String() string {
	switch s {
	case StepBudget:
		return "budget"
	case StepYield:
		return "yield"
	case StepSuspended:
		return "suspended"
	case StepCompleted:
		return "completed"
	}
	return "unknown"
}

// StepResult is returned by Step.
type StepResult struct {
	Status   Status
	Executed int
}

// Pending records the native operation a suspended tasklet waits on and the
// call site its result is injected at.
type Pending struct {
	Future  *future.Future
	Builtin string
	Frame   int
	PC      int
}
