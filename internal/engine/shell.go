package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "jobshell/pkg/logx"
)

// Result is the final status of one firing. Run always returns one of these;
// abandonment (store unreachable + shutdown requested mid-retry) is made
// explicit rather than silently returning.
type Result int

const (
	// ResultCompleted: the firing ran to the end and the store acknowledged it.
	ResultCompleted Result = iota
	// ResultVetoed: a trigger listener vetoed the firing before the job ran.
	ResultVetoed
	// ResultAborted: a listener failure stopped the firing without a store update.
	ResultAborted
	// ResultAbandoned: a persistence retry loop gave up because shutdown was requested.
	ResultAbandoned
)

func (r Result) String() string {
	switch r {
	case ResultCompleted:
		return "completed"
	case ResultVetoed:
		return "vetoed"
	case ResultAborted:
		return "aborted"
	case ResultAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

const (
	defaultCompleteRetryInterval = 15 * time.Second
	defaultVetoedRetryInterval   = 5 * time.Second
)

// Option customizes a RunShell.
type Option func(*RunShell)

// WithRetryIntervals overrides the backoff intervals of the persistence
// acknowledgement retry loops. Zero values keep the defaults (15s complete,
// 5s vetoed). Mainly for tests.
func WithRetryIntervals(complete, vetoed time.Duration) Option {
	return func(s *RunShell) {
		if complete > 0 {
			s.completeRetryInterval = complete
		}
		if vetoed > 0 {
			s.vetoedRetryInterval = vetoed
		}
	}
}

// RunShell provides the safe environment one fired trigger runs in.
//
// Lifecycle: NewRunShell → Initialize → Run, each at most once, all on the
// worker that owns the firing. RequestShutdown may be called at any time
// from any goroutine.
type RunShell struct {
	sched    Scheduler
	bundle   *FiredBundle
	ec       *ExecutionContext
	shutdown *ShutdownFlag
	log      logx.Logger

	completeRetryInterval time.Duration
	vetoedRetryInterval   time.Duration
}

// NewRunShell creates a shell for one fired-trigger bundle.
func NewRunShell(bundle *FiredBundle, log logx.Logger, opts ...Option) *RunShell {
	s := &RunShell{
		bundle:                bundle,
		shutdown:              NewShutdownFlag(),
		log:                   log,
		completeRetryInterval: defaultCompleteRetryInterval,
		vetoedRetryInterval:   defaultVetoedRetryInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// JobName is the shell's diagnostic identity: "jobName : triggerName".
func (s *RunShell) JobName() string {
	return s.bundle.JobDetail.Name + " : " + s.bundle.Trigger.Name()
}

// RequestShutdown sets the shell's shutdown flag. The persistence retry
// loops observe it after every wake; nothing else is interrupted.
func (s *RunShell) RequestShutdown() {
	s.shutdown.Set()
}

// Initialize builds the job instance for this firing via the scheduler's
// JobFactory. Instantiation failure is fatal to the firing: it is reported
// to scheduler listeners and returned, and Run must not be called.
func (s *RunShell) Initialize(sched Scheduler) error {
	s.sched = sched
	jd := s.bundle.JobDetail

	job, err := s.instantiateJob(sched)
	if err != nil {
		err = fmt.Errorf("instantiating job %q (type %q): %w", jd.Name, jd.Type, err)
		sched.NotifySchedulerListenersError(
			fmt.Sprintf("an error occurred instantiating job to be executed. job=%q", jd.Name), err)
		return err
	}

	s.ec = newExecutionContext(sched, s.bundle, job)
	return nil
}

// instantiateJob calls the factory behind a catch-all boundary: factories are
// external code and their failure surface is not enumerable.
func (s *RunShell) instantiateJob(sched Scheduler) (job Job, err error) {
	defer func() {
		if r := recover(); r != nil {
			job = nil
			err = panicError(r)
		}
	}()
	job, err = sched.JobFactory().NewJob(s.bundle, sched)
	if err == nil && job == nil {
		err = fmt.Errorf("job factory returned no job")
	}
	return job, err
}

type beginOutcome int

const (
	beginProceed beginOutcome = iota
	beginAbort
	beginVetoed
)

// Run drives the firing end-to-end. It never panics and never returns an
// error: every failure is classified and either recovered locally or
// reported through scheduler listeners. The returned Result says how the
// firing ended.
func (s *RunShell) Run(ctx context.Context) Result {
	if s.ec == nil || s.sched == nil {
		// Initialize was skipped or failed; there is nothing sane to run.
		s.log.Error("firing.not_initialized", logx.String("job", s.bundle.JobDetail.Name))
		return ResultAborted
	}

	trigger := s.ec.Trigger
	jobDetail := s.ec.JobDetail

	for {
		switch s.notifyListenersBeginning() {
		case beginAbort:
			// Some listener declined without veto: stop, no store update.
			return ResultAborted
		case beginVetoed:
			code := s.triggerExecutionComplete(nil)
			if err := s.sched.NotifyJobStoreJobVetoed(trigger, jobDetail, code); err != nil {
				if !s.vetoedJobRetryLoop(ctx, code) {
					s.log.Warn("firing.abandoned", logx.String("job", s.JobName()))
					return ResultAbandoned
				}
			}
			s.log.Info("firing.vetoed", logx.String("job", s.JobName()))
			return ResultVetoed
		}

		// Execute the job, wall-clock timed regardless of outcome.
		start := time.Now()
		jobErr := s.executeJob(ctx)
		s.ec.setJobRunTime(time.Since(start))

		// Trigger state is only advanced when job-listener notification succeeds.
		if !s.notifyJobListenersComplete(jobErr) {
			return ResultAborted
		}

		code := s.triggerExecutionComplete(jobErr)

		if !s.notifyTriggerListenersComplete(code) {
			return ResultAborted
		}

		if code == InstructionReExecuteJob {
			// Same job instance, same trigger; only the refire count moves.
			s.ec.incrementRefireCount()
			continue
		}

		if err := s.sched.NotifyJobStoreJobComplete(trigger, jobDetail, code); err != nil {
			s.sched.NotifySchedulerListenersError(
				fmt.Sprintf("an error occurred while marking executed job complete. job=%q", jobDetail.Name), err)
			if !s.completeTriggerRetryLoop(ctx, code) {
				s.log.Warn("firing.abandoned", logx.String("job", s.JobName()))
				return ResultAbandoned
			}
		}
		s.log.Debug("firing.completed",
			logx.String("job", s.JobName()),
			logx.String("instruction", code.String()),
			logx.Int("refires", s.ec.RefireCount()))
		return ResultCompleted
	}
}

// executeJob invokes the job instance behind a catch-all boundary and
// normalizes the outcome so downstream logic always sees a uniform
// "*JobError or nil".
func (s *RunShell) executeJob(ctx context.Context) *JobError {
	jd := s.ec.JobDetail

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				s.log.Error("job.panic",
					logx.String("job", jd.Name),
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())))
			}
		}()
		s.log.Debug("job.executing", logx.String("job", jd.Name), logx.Int("refires", s.ec.RefireCount()))
		err = s.ec.Job.Execute(ctx, s.ec)
	}()

	if err == nil {
		return nil
	}
	if je, ok := asJobError(err); ok {
		// Declared failure: data for the trigger, not an engine problem.
		s.log.Info("job.failed", logx.String("job", jd.Name), logx.Err(je.Err),
			logx.Bool("unschedule", je.UnscheduleTriggers))
		return je
	}

	// Undeclared failure (plain error or panic): report and synthesize a
	// declared-shaped error with the unschedule flag off.
	s.log.Error("job.unhandled_error", logx.String("job", jd.Name), logx.Err(err))
	wrapped := fmt.Errorf("job threw an unhandled error: %w", err)
	s.sched.NotifySchedulerListenersError(
		fmt.Sprintf("job %q threw an unhandled error", jd.Name), wrapped)
	return &JobError{Err: wrapped, UnscheduleTriggers: false}
}

// triggerExecutionComplete asks the trigger what the execution outcome means.
// A failure here is a bug in the trigger implementation: it is reported and
// the firing continues with NoOp instead of crashing the shell.
func (s *RunShell) triggerExecutionComplete(jobErr *JobError) Instruction {
	code := InstructionNoOp

	var cerr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				cerr = panicError(r)
			}
		}()
		got, err := s.ec.Trigger.ExecutionComplete(s.ec, jobErr)
		if err != nil {
			cerr = err
			return
		}
		code = got
	}()

	if cerr != nil {
		s.sched.NotifySchedulerListenersError(
			fmt.Sprintf("trigger completion logic failed (scheduler bug?). trigger=%q job=%q",
				s.ec.Trigger.Name(), s.ec.JobDetail.Name), cerr)
	}
	return code
}

// notifyListenersBeginning runs the "beginning" phase of the listener
// protocol: trigger listeners may veto the firing, job listeners gate
// execution.
func (s *RunShell) notifyListenersBeginning() beginOutcome {
	ec := s.ec

	vetoed, err := s.sched.NotifyTriggerListenersFired(ec)
	if err != nil {
		s.sched.NotifySchedulerListenersError(
			fmt.Sprintf("unable to notify trigger listeners of fired trigger (trigger and job will NOT be fired). trigger=%q job=%q",
				ec.Trigger.Name(), ec.JobDetail.Name), err)
		return beginAbort
	}

	if vetoed {
		// Veto-notification failures are logged, not propagated; the veto stands.
		if err := s.sched.NotifyJobListenersWasVetoed(ec); err != nil {
			s.sched.NotifySchedulerListenersError(
				fmt.Sprintf("unable to notify job listeners of vetoed execution. trigger=%q job=%q",
					ec.Trigger.Name(), ec.JobDetail.Name), err)
		}
		return beginVetoed
	}

	// This phase is explicitly a gate: a failure means "do not execute".
	if err := s.sched.NotifyJobListenersToBeExecuted(ec); err != nil {
		s.sched.NotifySchedulerListenersError(
			fmt.Sprintf("unable to notify job listeners of job to be executed (job will NOT be executed). trigger=%q job=%q",
				ec.Trigger.Name(), ec.JobDetail.Name), err)
		return beginAbort
	}

	return beginProceed
}

// notifyJobListenersComplete runs the "job complete" phase. A listener
// failure here is non-fatal to the process but stops the firing before the
// trigger is updated.
func (s *RunShell) notifyJobListenersComplete(jobErr *JobError) bool {
	ec := s.ec
	if err := s.sched.NotifyJobListenersWasExecuted(ec, jobErr); err != nil {
		s.sched.NotifySchedulerListenersError(
			fmt.Sprintf("unable to notify job listeners of executed job (error will be ignored). trigger=%q job=%q",
				ec.Trigger.Name(), ec.JobDetail.Name), err)
		return false
	}
	return true
}

// notifyTriggerListenersComplete runs the "trigger complete" phase and, on
// success, emits the finalized notification when the trigger has no further
// fire time.
func (s *RunShell) notifyTriggerListenersComplete(code Instruction) bool {
	ec := s.ec
	if err := s.sched.NotifyTriggerListenersComplete(ec, code); err != nil {
		s.sched.NotifySchedulerListenersError(
			fmt.Sprintf("unable to notify trigger listeners of completed job (error will be ignored). trigger=%q job=%q",
				ec.Trigger.Name(), ec.JobDetail.Name), err)
		return false
	}
	if _, ok := ec.Trigger.NextFireTime(); !ok {
		s.sched.NotifySchedulerListenersFinalized(ec.Trigger)
	}
	return true
}
