// Package tasklet implements the interpreted thread of execution.
//
// A Tasklet owns a stack of frames over compiled callables and moves through
// three states:
//
//	Runnable  --CALL async builtin-->  Suspended
//	Suspended --Resume(p, v, err)--->  Runnable
//	Runnable  --RETURN / escape----->  Completed
//
// Completed is terminal. The frame stack is empty exactly when the tasklet is
// Completed.
//
// # Suspension
//
// Calling an async builtin records the returned future and the call site,
// then Step returns StepSuspended. The owner later calls Poll, or Resume with
// the settled value. A value is pushed onto the calling frame's stack; a
// failure is raised at the call site and unwinds like any interpreted
// failure. Once injected, the two are indistinguishable to the program.
//
// # Failures
//
// Failures unwind frame by frame. SETUP_EXCEPT installs a handler that
// catches the failure within its frame; past the bottom frame the tasklet
// completes with an escaped failure wrapping the original.
package tasklet
