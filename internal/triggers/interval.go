package triggers

import (
	"errors"
	"sync"
	"time"

	"jobshell/internal/engine"
)

// Policy is the completion policy shared by trigger kinds.
type Policy struct {
	// MaxRefires allows up to N immediate re-executions per firing when the
	// job reports a declared failure. 0 disables refiring.
	MaxRefires int
}

// Interval fires every fixed period, optionally at most RunLimit times.
type Interval struct {
	name   string
	every  time.Duration
	policy Policy

	mu       sync.Mutex
	runLimit int // 0 = unlimited
	runs     int
	prev     time.Time
	next     time.Time
	hasNext  bool
}

// NewInterval creates an interval trigger whose first firing is due
// every from now. runLimit 0 means unlimited.
func NewInterval(name string, every time.Duration, runLimit int, policy Policy) (*Interval, error) {
	if every <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	return &Interval{
		name:     name,
		every:    every,
		policy:   policy,
		runLimit: runLimit,
		next:     time.Now().Add(every),
		hasNext:  true,
	}, nil
}

func (t *Interval) Name() string { return t.name }

// Triggered advances the trigger's scheduling state for a firing at now and
// returns the (prev, next) fire times for the bundle.
func (t *Interval) Triggered(now time.Time) (prev time.Time, next time.Time, hasNext bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev = t.prev
	t.prev = now
	t.runs++
	if t.runLimit > 0 && t.runs >= t.runLimit {
		t.hasNext = false
		t.next = time.Time{}
	} else {
		t.next = now.Add(t.every)
		t.hasNext = true
	}
	return prev, t.next, t.hasNext
}

func (t *Interval) NextFireTime() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next, t.hasNext
}

func (t *Interval) ExecutionComplete(ec *engine.ExecutionContext, jobErr *engine.JobError) (engine.Instruction, error) {
	return completionInstruction(t, t.policy, ec, jobErr)
}

// completionInstruction is the shared trigger-completion policy.
func completionInstruction(t engine.Trigger, p Policy, ec *engine.ExecutionContext, jobErr *engine.JobError) (engine.Instruction, error) {
	if jobErr != nil {
		if p.MaxRefires > 0 && ec.RefireCount() < p.MaxRefires {
			return engine.InstructionReExecuteJob, nil
		}
		if jobErr.UnscheduleTriggers {
			return engine.InstructionSetTriggerError, nil
		}
	}
	if _, ok := t.NextFireTime(); !ok {
		return engine.InstructionSetTriggerComplete, nil
	}
	return engine.InstructionNoOp, nil
}
