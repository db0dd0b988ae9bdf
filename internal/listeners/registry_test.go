package listeners

import (
	"errors"
	"strings"
	"testing"
	"time"

	"jobshell/internal/engine"
	logx "jobshell/pkg/logx"
)

type stubTrigger struct{ name string }

func (t stubTrigger) Name() string { return t.name }
func (t stubTrigger) ExecutionComplete(ec *engine.ExecutionContext, jobErr *engine.JobError) (engine.Instruction, error) {
	return engine.InstructionNoOp, nil
}
func (t stubTrigger) NextFireTime() (time.Time, bool) { return time.Time{}, false }

type recTriggerListener struct {
	name     string
	firedErr error
	veto     bool

	fired     int
	vetoAsked int
	complete  int
}

func (l *recTriggerListener) Name() string { return l.name }
func (l *recTriggerListener) TriggerFired(ec *engine.ExecutionContext) error {
	l.fired++
	return l.firedErr
}
func (l *recTriggerListener) VetoJobExecution(ec *engine.ExecutionContext) bool {
	l.vetoAsked++
	return l.veto
}
func (l *recTriggerListener) TriggerComplete(ec *engine.ExecutionContext, code engine.Instruction) error {
	l.complete++
	return nil
}

type recJobListener struct {
	name        string
	toBeErr     error
	wasExecErr  error
	toBe        int
	vetoed      int
	wasExecuted int
}

func (l *recJobListener) Name() string { return l.name }
func (l *recJobListener) JobToBeExecuted(ec *engine.ExecutionContext) error {
	l.toBe++
	return l.toBeErr
}
func (l *recJobListener) JobExecutionVetoed(ec *engine.ExecutionContext) error {
	l.vetoed++
	return nil
}
func (l *recJobListener) JobWasExecuted(ec *engine.ExecutionContext, jobErr *engine.JobError) error {
	l.wasExecuted++
	return l.wasExecErr
}

type recSchedListener struct {
	name   string
	panics bool
	errors int
	final  int
	stops  int
}

func (l *recSchedListener) Name() string { return l.name }
func (l *recSchedListener) SchedulerError(msg string, err error) {
	if l.panics {
		panic("listener bug")
	}
	l.errors++
}
func (l *recSchedListener) TriggerFinalized(tr engine.Trigger) { l.final++ }
func (l *recSchedListener) SchedulerShuttingDown()             { l.stops++ }

func testEC() *engine.ExecutionContext {
	return &engine.ExecutionContext{
		Trigger:   stubTrigger{name: "t"},
		JobDetail: &engine.JobDetail{Name: "j", Type: "test"},
	}
}

func TestTriggersFiredFirstVetoWins(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())
	first := &recTriggerListener{name: "first", veto: true}
	second := &recTriggerListener{name: "second"}
	r.AddTriggerListener(first)
	r.AddTriggerListener(second)

	vetoed, err := r.TriggersFired(testEC())
	if err != nil {
		t.Fatalf("TriggersFired error: %v", err)
	}
	if !vetoed {
		t.Fatal("veto was not honored")
	}
	// The scan stops at the vetoing listener.
	if second.fired != 0 || second.vetoAsked != 0 {
		t.Fatalf("second listener was asked after a veto: fired=%d veto=%d", second.fired, second.vetoAsked)
	}
}

func TestTriggersFiredErrorNamesListener(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())
	r.AddTriggerListener(&recTriggerListener{name: "broken", firedErr: errors.New("down")})

	_, err := r.TriggersFired(testEC())
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("error %v does not name the failing listener", err)
	}
}

func TestJobListenersOrderAndGate(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())
	ok := &recJobListener{name: "ok"}
	gate := &recJobListener{name: "gate", toBeErr: errors.New("not now")}
	after := &recJobListener{name: "after"}
	r.AddJobListener(ok)
	r.AddJobListener(gate)
	r.AddJobListener(after)

	if err := r.JobsToBeExecuted(testEC()); err == nil {
		t.Fatal("gating error was swallowed")
	}
	if ok.toBe != 1 || gate.toBe != 1 || after.toBe != 0 {
		t.Fatalf("fan-out order wrong: %d %d %d", ok.toBe, gate.toBe, after.toBe)
	}
}

func TestJobsWasExecutedPassesJobError(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())
	l := &recJobListener{name: "l"}
	r.AddJobListener(l)

	if err := r.JobsWasExecuted(testEC(), engine.NewJobError(errors.New("x"))); err != nil {
		t.Fatalf("JobsWasExecuted error: %v", err)
	}
	if l.wasExecuted != 1 {
		t.Fatalf("wasExecuted = %d, want 1", l.wasExecuted)
	}
}

func TestSchedulerListenerPanicContained(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())
	bad := &recSchedListener{name: "bad", panics: true}
	good := &recSchedListener{name: "good"}
	r.AddSchedulerListener(bad)
	r.AddSchedulerListener(good)

	r.SchedulerError("oops", errors.New("x")) // must not panic
	if good.errors != 1 {
		t.Fatalf("good listener notified %d times, want 1", good.errors)
	}

	r.TriggerFinalized(stubTrigger{name: "t"})
	r.SchedulerShuttingDown()
	if good.final != 1 || good.stops != 1 {
		t.Fatalf("finalized/shutdown fan-out: %d/%d", good.final, good.stops)
	}
}

func TestRemoveListeners(t *testing.T) {
	t.Parallel()
	r := NewRegistry(logx.Nop())
	r.AddTriggerListener(&recTriggerListener{name: "a"})
	r.AddJobListener(&recJobListener{name: "b"})
	r.AddSchedulerListener(&recSchedListener{name: "c"})

	if !r.RemoveTriggerListener("a") || r.RemoveTriggerListener("a") {
		t.Fatal("trigger listener removal")
	}
	if !r.RemoveJobListener("b") || r.RemoveJobListener("b") {
		t.Fatal("job listener removal")
	}
	if !r.RemoveSchedulerListener("c") || r.RemoveSchedulerListener("c") {
		t.Fatal("scheduler listener removal")
	}
}
