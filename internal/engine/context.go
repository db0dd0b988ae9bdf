package engine

import "time"

// ExecutionContext is the mutable record describing one firing. It is created
// once per firing, mutated in place by the shell, and passed by reference to
// every listener and to the job itself. It does not outlive the firing.
type ExecutionContext struct {
	Scheduler Scheduler
	Trigger   Trigger
	JobDetail *JobDetail
	Job       Job

	FireTime          time.Time
	ScheduledFireTime time.Time
	PrevFireTime      time.Time
	NextFireTime      time.Time

	// Result is a free slot for jobs to publish an outcome to listeners.
	Result any

	refireCount int
	jobRunTime  time.Duration
	hasRunTime  bool
}

func newExecutionContext(sched Scheduler, b *FiredBundle, job Job) *ExecutionContext {
	return &ExecutionContext{
		Scheduler:         sched,
		Trigger:           b.Trigger,
		JobDetail:         b.JobDetail,
		Job:               job,
		FireTime:          b.FireTime,
		ScheduledFireTime: b.ScheduledFireTime,
		PrevFireTime:      b.PrevFireTime,
		NextFireTime:      b.NextFireTime,
	}
}

// RefireCount is the number of re-execute cycles this firing has gone
// through. It only ever increases, and only when the trigger's completion
// instruction was ReExecuteJob.
func (ec *ExecutionContext) RefireCount() int { return ec.refireCount }

func (ec *ExecutionContext) incrementRefireCount() { ec.refireCount++ }

// JobRunTime is the wall-clock duration of the most recent execution attempt.
// ok=false before the first attempt finishes.
func (ec *ExecutionContext) JobRunTime() (d time.Duration, ok bool) {
	return ec.jobRunTime, ec.hasRunTime
}

func (ec *ExecutionContext) setJobRunTime(d time.Duration) {
	ec.jobRunTime = d
	ec.hasRunTime = true
}
