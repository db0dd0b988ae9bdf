package engine

// Scheduler is the facade the shell drives. The shell consumes it; the
// concrete implementation (listener registry, job store, factory wiring)
// lives outside this package.
//
// The notify methods fan out to externally registered listeners. Their error
// returns follow the listener protocol: an error from a "beginning" phase
// gates execution, errors from later phases abort the firing without
// advancing trigger or store state. NotifyJobStoreJobComplete and
// NotifyJobStoreJobVetoed return persistence errors, which the shell retries.
type Scheduler interface {
	JobFactory() JobFactory

	// IsShuttingDown reports whether the scheduler is already shutting down.
	// The retry loops poll it in addition to the shell's own shutdown flag.
	IsShuttingDown() bool

	NotifySchedulerListenersError(msg string, err error)
	NotifySchedulerListenersFinalized(tr Trigger)

	// NotifyTriggerListenersFired asks trigger listeners whether the firing
	// is vetoed. The first listener to veto wins; fan-out order belongs to
	// the registry, the shell only consumes the boolean.
	NotifyTriggerListenersFired(ec *ExecutionContext) (vetoed bool, err error)

	NotifyJobListenersWasVetoed(ec *ExecutionContext) error
	NotifyJobListenersToBeExecuted(ec *ExecutionContext) error
	NotifyJobListenersWasExecuted(ec *ExecutionContext, jobErr *JobError) error
	NotifyTriggerListenersComplete(ec *ExecutionContext, code Instruction) error

	NotifyJobStoreJobComplete(tr Trigger, jd *JobDetail, code Instruction) error
	NotifyJobStoreJobVetoed(tr Trigger, jd *JobDetail, code Instruction) error
}
