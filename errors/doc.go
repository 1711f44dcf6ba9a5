// Package errors provides structured error types for the tasklet runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes context: resource description, tasklet name, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResume, errors.KindInvalidHandle).
//		Tasklet("worker").
//		Detail("tasklet is not suspended").
//		Build()
//
// Or use convenience constructors for the runtime taxonomy:
//
//	err := errors.DuplicateProvider("file")
//	err := errors.MissingProvider("timer")
//	err := errors.NativeFailure("file#3", cause)
//	err := errors.Escaped("main", failure)
//
// Escaped failures keep the original failure as Cause, so HasKind and errors.As
// see through the tasklet boundary.
package errors
