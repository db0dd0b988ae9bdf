package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	logx "jobshell/pkg/logx"
)

// ---- fakes ----

type fakeTrigger struct {
	name string

	// codes is consumed one instruction per ExecutionComplete call; when
	// exhausted, NoOp is returned.
	codes []Instruction
	err   error
	panic bool

	hasNext bool
	next    time.Time

	mu      sync.Mutex
	calls   int
	jobErrs []*JobError
}

func (t *fakeTrigger) Name() string {
	if t.name == "" {
		return "trig"
	}
	return t.name
}

func (t *fakeTrigger) ExecutionComplete(ec *ExecutionContext, jobErr *JobError) (Instruction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.jobErrs = append(t.jobErrs, jobErr)
	if t.panic {
		panic("trigger bug")
	}
	if t.err != nil {
		return InstructionNoOp, t.err
	}
	if len(t.codes) == 0 {
		return InstructionNoOp, nil
	}
	code := t.codes[0]
	t.codes = t.codes[1:]
	return code, nil
}

func (t *fakeTrigger) NextFireTime() (time.Time, bool) { return t.next, t.hasNext }

type fakeJob struct {
	mu   sync.Mutex
	runs int
	fn   func(ctx context.Context, ec *ExecutionContext) error
}

func (j *fakeJob) Execute(ctx context.Context, ec *ExecutionContext) error {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()
	if j.fn != nil {
		return j.fn(ctx, ec)
	}
	return nil
}

func (j *fakeJob) runCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

type fakeFactory struct {
	job    Job
	err    error
	panics bool
	builds int
}

func (f *fakeFactory) NewJob(b *FiredBundle, sched Scheduler) (Job, error) {
	f.builds++
	if f.panics {
		panic("factory exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

type fakeScheduler struct {
	mu sync.Mutex

	factory      JobFactory
	shuttingDown bool

	vetoFired          bool
	firedErr           error
	wasVetoedErr       error
	toBeExecutedErr    error
	wasExecutedErr     error
	triggerCompleteErr error

	// Store behavior: errors are consumed one per call; a nil entry (or an
	// exhausted slice) means success. alwaysFailComplete overrides.
	completeErrs       []error
	alwaysFailComplete bool
	vetoedErrs         []error
	alwaysFailVetoed   bool

	completeCalls int
	vetoedCalls   int

	errorReports  []string
	finalized     []Trigger
	toBeExecuted  int
	wasVetoed     int
	wasExecuted   []*JobError
	completeCodes []Instruction
}

func newFakeScheduler(job Job) *fakeScheduler {
	return &fakeScheduler{factory: &fakeFactory{job: job}}
}

func (f *fakeScheduler) JobFactory() JobFactory { return f.factory }

func (f *fakeScheduler) IsShuttingDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shuttingDown
}

func (f *fakeScheduler) NotifySchedulerListenersError(msg string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorReports = append(f.errorReports, fmt.Sprintf("%s: %v", msg, err))
}

func (f *fakeScheduler) NotifySchedulerListenersFinalized(tr Trigger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, tr)
}

func (f *fakeScheduler) NotifyTriggerListenersFired(ec *ExecutionContext) (bool, error) {
	return f.vetoFired, f.firedErr
}

func (f *fakeScheduler) NotifyJobListenersWasVetoed(ec *ExecutionContext) error {
	f.mu.Lock()
	f.wasVetoed++
	f.mu.Unlock()
	return f.wasVetoedErr
}

func (f *fakeScheduler) NotifyJobListenersToBeExecuted(ec *ExecutionContext) error {
	f.mu.Lock()
	f.toBeExecuted++
	f.mu.Unlock()
	return f.toBeExecutedErr
}

func (f *fakeScheduler) NotifyJobListenersWasExecuted(ec *ExecutionContext, jobErr *JobError) error {
	f.mu.Lock()
	f.wasExecuted = append(f.wasExecuted, jobErr)
	f.mu.Unlock()
	return f.wasExecutedErr
}

func (f *fakeScheduler) NotifyTriggerListenersComplete(ec *ExecutionContext, code Instruction) error {
	return f.triggerCompleteErr
}

func (f *fakeScheduler) NotifyJobStoreJobComplete(tr Trigger, jd *JobDetail, code Instruction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	f.completeCodes = append(f.completeCodes, code)
	if f.alwaysFailComplete {
		return errors.New("store down")
	}
	if len(f.completeErrs) > 0 {
		err := f.completeErrs[0]
		f.completeErrs = f.completeErrs[1:]
		return err
	}
	return nil
}

func (f *fakeScheduler) NotifyJobStoreJobVetoed(tr Trigger, jd *JobDetail, code Instruction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vetoedCalls++
	if f.alwaysFailVetoed {
		return errors.New("store down")
	}
	if len(f.vetoedErrs) > 0 {
		err := f.vetoedErrs[0]
		f.vetoedErrs = f.vetoedErrs[1:]
		return err
	}
	return nil
}

func (f *fakeScheduler) reportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errorReports)
}

func newBundle(tr Trigger) *FiredBundle {
	now := time.Now()
	return &FiredBundle{
		JobDetail:         &JobDetail{Name: "job", Type: "test"},
		Trigger:           tr,
		FireTime:          now,
		ScheduledFireTime: now,
	}
}

func newShell(t *testing.T, sched *fakeScheduler, tr Trigger, opts ...Option) *RunShell {
	t.Helper()
	opts = append([]Option{WithRetryIntervals(time.Millisecond, time.Millisecond)}, opts...)
	s := NewRunShell(newBundle(tr), logx.Nop(), opts...)
	if err := s.Initialize(sched); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	return s
}

// ---- tests ----

func TestRunNormalCompletion(t *testing.T) {
	t.Parallel()
	job := &fakeJob{}
	sched := newFakeScheduler(job)
	tr := &fakeTrigger{hasNext: true, next: time.Now().Add(time.Minute)}

	s := newShell(t, sched, tr)
	if got := s.Run(context.Background()); got != ResultCompleted {
		t.Fatalf("Run = %v, want %v", got, ResultCompleted)
	}
	if job.runCount() != 1 {
		t.Fatalf("job ran %d times, want 1", job.runCount())
	}
	if tr.calls != 1 {
		t.Fatalf("trigger ExecutionComplete called %d times, want 1", tr.calls)
	}
	if sched.completeCalls != 1 {
		t.Fatalf("store complete called %d times, want 1", sched.completeCalls)
	}
	if tr.jobErrs[0] != nil {
		t.Fatalf("trigger saw job error %v, want nil", tr.jobErrs[0])
	}
	if len(sched.finalized) != 0 {
		t.Fatal("trigger with a next fire time must not be finalized")
	}
	if _, ok := s.ec.JobRunTime(); !ok {
		t.Fatal("job run time was not recorded")
	}
}

func TestRunVetoSkipsJob(t *testing.T) {
	t.Parallel()
	job := &fakeJob{}
	sched := newFakeScheduler(job)
	sched.vetoFired = true
	tr := &fakeTrigger{}

	s := newShell(t, sched, tr)
	if got := s.Run(context.Background()); got != ResultVetoed {
		t.Fatalf("Run = %v, want %v", got, ResultVetoed)
	}
	if job.runCount() != 0 {
		t.Fatalf("vetoed firing executed the job %d times", job.runCount())
	}
	if sched.wasVetoed != 1 {
		t.Fatalf("job listeners notified of veto %d times, want 1", sched.wasVetoed)
	}
	if sched.vetoedCalls != 1 {
		t.Fatalf("store vetoed called %d times, want 1", sched.vetoedCalls)
	}
	// Completion instruction is still computed, with a nil execution result.
	if tr.calls != 1 || tr.jobErrs[0] != nil {
		t.Fatalf("trigger completion: calls=%d jobErr=%v", tr.calls, tr.jobErrs[0])
	}
}

func TestRunVetoNotificationFailureDoesNotLiftVeto(t *testing.T) {
	t.Parallel()
	job := &fakeJob{}
	sched := newFakeScheduler(job)
	sched.vetoFired = true
	sched.wasVetoedErr = errors.New("listener broken")

	s := newShell(t, sched, &fakeTrigger{})
	if got := s.Run(context.Background()); got != ResultVetoed {
		t.Fatalf("Run = %v, want %v", got, ResultVetoed)
	}
	if job.runCount() != 0 {
		t.Fatal("job ran despite veto")
	}
	if sched.reportCount() == 0 {
		t.Fatal("veto-notification failure was not reported")
	}
}

func TestRunDeclaredJobErrorReachesTrigger(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	job := &fakeJob{fn: func(ctx context.Context, ec *ExecutionContext) error {
		return &JobError{Err: boom, UnscheduleTriggers: true}
	}}
	sched := newFakeScheduler(job)
	tr := &fakeTrigger{codes: []Instruction{InstructionSetTriggerError}}

	s := newShell(t, sched, tr)
	if got := s.Run(context.Background()); got != ResultCompleted {
		t.Fatalf("Run = %v, want %v", got, ResultCompleted)
	}
	je := tr.jobErrs[0]
	if je == nil || !je.UnscheduleTriggers || !errors.Is(je, boom) {
		t.Fatalf("trigger saw job error %+v, want declared error with unschedule=true", je)
	}
	// Completion notification still occurred, with the job error attached.
	if len(sched.wasExecuted) != 1 || sched.wasExecuted[0] != je {
		t.Fatalf("job listeners saw %v, want the declared job error", sched.wasExecuted)
	}
	// The instruction is whatever the trigger computed.
	if sched.completeCodes[0] != InstructionSetTriggerError {
		t.Fatalf("store received %v, want %v", sched.completeCodes[0], InstructionSetTriggerError)
	}
	// Declared failures are not reported to scheduler listeners.
	if sched.reportCount() != 0 {
		t.Fatalf("declared job error was reported: %v", sched.errorReports)
	}
}

func TestRunUndeclaredErrorBecomesSyntheticJobError(t *testing.T) {
	t.Parallel()
	job := &fakeJob{fn: func(ctx context.Context, ec *ExecutionContext) error {
		return errors.New("plain failure")
	}}
	sched := newFakeScheduler(job)
	tr := &fakeTrigger{}

	s := newShell(t, sched, tr)
	if got := s.Run(context.Background()); got != ResultCompleted {
		t.Fatalf("Run = %v, want %v", got, ResultCompleted)
	}
	je := tr.jobErrs[0]
	if je == nil || je.UnscheduleTriggers {
		t.Fatalf("trigger saw %+v, want synthetic job error with unschedule=false", je)
	}
	if sched.reportCount() != 1 {
		t.Fatalf("unhandled job error reported %d times, want 1", sched.reportCount())
	}
}

func TestRunJobPanicIsContained(t *testing.T) {
	t.Parallel()
	job := &fakeJob{fn: func(ctx context.Context, ec *ExecutionContext) error {
		panic("job exploded")
	}}
	sched := newFakeScheduler(job)
	tr := &fakeTrigger{}

	s := newShell(t, sched, tr)
	if got := s.Run(context.Background()); got != ResultCompleted {
		t.Fatalf("Run = %v, want %v", got, ResultCompleted)
	}
	if je := tr.jobErrs[0]; je == nil || je.UnscheduleTriggers {
		t.Fatalf("trigger saw %+v, want synthetic job error", je)
	}
}

func TestRunReExecuteReusesJobInstance(t *testing.T) {
	t.Parallel()
	job := &fakeJob{}
	sched := newFakeScheduler(job)
	tr := &fakeTrigger{codes: []Instruction{
		InstructionReExecuteJob,
		InstructionReExecuteJob,
		InstructionNoOp,
	}}

	s := newShell(t, sched, tr)
	if got := s.Run(context.Background()); got != ResultCompleted {
		t.Fatalf("Run = %v, want %v", got, ResultCompleted)
	}
	if job.runCount() != 3 {
		t.Fatalf("job ran %d times, want 3", job.runCount())
	}
	if got := s.ec.RefireCount(); got != 2 {
		t.Fatalf("refire count = %d, want 2", got)
	}
	if f := sched.factory.(*fakeFactory); f.builds != 1 {
		t.Fatalf("factory built %d jobs, want 1 (re-execute must reuse the instance)", f.builds)
	}
	// Only the final, non-re-execute pass hits the store.
	if sched.completeCalls != 1 {
		t.Fatalf("store complete called %d times, want 1", sched.completeCalls)
	}
}

func TestRunTriggerBugDegradesToNoOp(t *testing.T) {
	t.Parallel()
	job := &fakeJob{}
	sched := newFakeScheduler(job)
	tr := &fakeTrigger{panic: true}

	s := newShell(t, sched, tr)
	if got := s.Run(context.Background()); got != ResultCompleted {
		t.Fatalf("Run = %v, want %v", got, ResultCompleted)
	}
	if sched.completeCodes[0] != InstructionNoOp {
		t.Fatalf("instruction = %v, want NoOp after trigger failure", sched.completeCodes[0])
	}
	if sched.reportCount() == 0 {
		t.Fatal("trigger failure was not reported")
	}
}

func TestRunTriggerErrorReturnIsAlsoContained(t *testing.T) {
	t.Parallel()
	job := &fakeJob{}
	sched := newFakeScheduler(job)
	tr := &fakeTrigger{err: errors.New("bad trigger state")}

	s := newShell(t, sched, tr)
	if got := s.Run(context.Background()); got != ResultCompleted {
		t.Fatalf("Run = %v, want %v", got, ResultCompleted)
	}
	if sched.completeCodes[0] != InstructionNoOp {
		t.Fatalf("instruction = %v, want NoOp", sched.completeCodes[0])
	}
}

func TestRunListenerFailuresAbortWithoutStoreUpdate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(f *fakeScheduler)
		jobRuns int
	}{
		{name: "trigger listeners fired", mutate: func(f *fakeScheduler) { f.firedErr = errors.New("x") }, jobRuns: 0},
		{name: "job listeners to be executed", mutate: func(f *fakeScheduler) { f.toBeExecutedErr = errors.New("x") }, jobRuns: 0},
		{name: "job listeners was executed", mutate: func(f *fakeScheduler) { f.wasExecutedErr = errors.New("x") }, jobRuns: 1},
		{name: "trigger listeners complete", mutate: func(f *fakeScheduler) { f.triggerCompleteErr = errors.New("x") }, jobRuns: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &fakeJob{}
			sched := newFakeScheduler(job)
			tt.mutate(sched)
			tr := &fakeTrigger{}

			s := newShell(t, sched, tr)
			if got := s.Run(context.Background()); got != ResultAborted {
				t.Fatalf("Run = %v, want %v", got, ResultAborted)
			}
			if job.runCount() != tt.jobRuns {
				t.Fatalf("job ran %d times, want %d", job.runCount(), tt.jobRuns)
			}
			if sched.completeCalls != 0 || sched.vetoedCalls != 0 {
				t.Fatalf("store touched on aborted firing: complete=%d vetoed=%d",
					sched.completeCalls, sched.vetoedCalls)
			}
			if sched.reportCount() == 0 {
				t.Fatal("listener failure was not reported")
			}
		})
	}
}

func TestRunWasExecutedFailureSkipsTriggerUpdate(t *testing.T) {
	t.Parallel()
	job := &fakeJob{}
	sched := newFakeScheduler(job)
	sched.wasExecutedErr = errors.New("listener down")
	tr := &fakeTrigger{}

	s := newShell(t, sched, tr)
	if got := s.Run(context.Background()); got != ResultAborted {
		t.Fatalf("Run = %v, want %v", got, ResultAborted)
	}
	if tr.calls != 0 {
		t.Fatal("trigger state advanced even though job-listener notification failed")
	}
}

func TestRunFinalizedNotification(t *testing.T) {
	t.Parallel()
	job := &fakeJob{}
	sched := newFakeScheduler(job)
	tr := &fakeTrigger{hasNext: false}

	s := newShell(t, sched, tr)
	if got := s.Run(context.Background()); got != ResultCompleted {
		t.Fatalf("Run = %v, want %v", got, ResultCompleted)
	}
	if len(sched.finalized) != 1 {
		t.Fatalf("finalized notified %d times, want 1", len(sched.finalized))
	}
}

func TestInitializeFactoryError(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler(nil)
	sched.factory = &fakeFactory{err: errors.New("no such job type")}

	s := NewRunShell(newBundle(&fakeTrigger{}), logx.Nop())
	if err := s.Initialize(sched); err == nil {
		t.Fatal("Initialize succeeded with a failing factory")
	}
	if sched.reportCount() != 1 {
		t.Fatalf("instantiation failure reported %d times, want 1", sched.reportCount())
	}
}

func TestInitializeFactoryPanic(t *testing.T) {
	t.Parallel()
	sched := newFakeScheduler(nil)
	sched.factory = &fakeFactory{panics: true}

	s := NewRunShell(newBundle(&fakeTrigger{}), logx.Nop())
	if err := s.Initialize(sched); err == nil {
		t.Fatal("Initialize succeeded despite factory panic")
	}
	if sched.reportCount() != 1 {
		t.Fatalf("instantiation panic reported %d times, want 1", sched.reportCount())
	}
}

func TestRunWithoutInitialize(t *testing.T) {
	t.Parallel()
	s := NewRunShell(newBundle(&fakeTrigger{}), logx.Nop())
	if got := s.Run(context.Background()); got != ResultAborted {
		t.Fatalf("Run = %v, want %v", got, ResultAborted)
	}
}

func TestJobName(t *testing.T) {
	t.Parallel()
	s := NewRunShell(newBundle(&fakeTrigger{name: "every-5m"}), logx.Nop())
	if got := s.JobName(); got != "job : every-5m" {
		t.Fatalf("JobName = %q", got)
	}
}
