package engine

import (
	"context"
	"time"
)

// JobDetail identifies a job definition: a stable name, the type key the
// JobFactory instantiates from, and an optional payload.
//
// A JobDetail is owned by the scheduler's definition store; the shell treats
// it as immutable for the duration of one firing.
type JobDetail struct {
	Name string
	Type string
	Data map[string]any
}

// FiredBundle is the immutable snapshot produced by the scheduler when a
// trigger fires. It is owned by the caller; the shell only reads it.
type FiredBundle struct {
	JobDetail *JobDetail
	Trigger   Trigger

	FireTime          time.Time
	ScheduledFireTime time.Time
	PrevFireTime      time.Time
	NextFireTime      time.Time
}

// Job is a single runnable unit of work.
//
// Execute should return nil on success, a *JobError for a declared failure
// the trigger's completion logic should see, or any other error for an
// unexpected failure (which the shell converts into a synthetic *JobError
// with UnscheduleTriggers=false). Panics are handled the same way as
// undeclared errors.
type Job interface {
	Execute(ctx context.Context, ec *ExecutionContext) error
}

// JobFactory instantiates a fresh Job for one firing.
//
// The returned instance is owned exclusively by the run shell until the
// firing ends; re-execute cycles reuse it rather than building a new one.
type JobFactory interface {
	NewJob(b *FiredBundle, sched Scheduler) (Job, error)
}
