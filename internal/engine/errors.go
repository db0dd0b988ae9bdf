package engine

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by Run-adjacent paths when Initialize was
// never called (or failed) on a shell.
var ErrNotInitialized = errors.New("run shell not initialized")

// JobError is the declared failure a Job may return from Execute.
//
// UnscheduleTriggers is a hint for the trigger's completion logic: the job is
// telling the scheduler that firing it again is pointless. The trigger stays
// authoritative; the shell never acts on the flag directly.
type JobError struct {
	Err                error
	UnscheduleTriggers bool
}

// NewJobError wraps err as a declared job failure.
func NewJobError(err error) *JobError {
	return &JobError{Err: err}
}

func (e *JobError) Error() string {
	if e == nil || e.Err == nil {
		return "job error"
	}
	return "job error: " + e.Err.Error()
}

func (e *JobError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// asJobError reports whether err is (or wraps) a declared *JobError.
func asJobError(err error) (*JobError, bool) {
	var je *JobError
	if errors.As(err, &je) && je != nil {
		return je, true
	}
	return nil, false
}

// panicError converts a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
