package listeners

import (
	"fmt"
	"sync"

	"jobshell/internal/engine"
	logx "jobshell/pkg/logx"
)

// TriggerListener observes trigger-level lifecycle events and may veto a
// firing before the job runs.
type TriggerListener interface {
	Name() string
	// TriggerFired is called when a trigger has fired and its job is about
	// to run. An error aborts the firing.
	TriggerFired(ec *engine.ExecutionContext) error
	// VetoJobExecution may cancel the firing outright. The first listener
	// to return true wins.
	VetoJobExecution(ec *engine.ExecutionContext) bool
	// TriggerComplete is called after the trigger's completion instruction
	// has been computed.
	TriggerComplete(ec *engine.ExecutionContext, code engine.Instruction) error
}

// JobListener observes job-level lifecycle events. JobToBeExecuted acts as a
// gate: an error there means the job will not run.
type JobListener interface {
	Name() string
	JobToBeExecuted(ec *engine.ExecutionContext) error
	JobExecutionVetoed(ec *engine.ExecutionContext) error
	JobWasExecuted(ec *engine.ExecutionContext, jobErr *engine.JobError) error
}

// SchedulerListener receives scheduler-level signals. These are best-effort:
// implementations must not assume delivery ordering across firings, and a
// panicking listener is contained by the registry.
type SchedulerListener interface {
	Name() string
	SchedulerError(msg string, err error)
	TriggerFinalized(tr engine.Trigger)
	SchedulerShuttingDown()
}

// Registry is an ordered, concurrency-safe listener registry.
type Registry struct {
	mu        sync.RWMutex
	triggers  []TriggerListener
	jobs      []JobListener
	listeners []SchedulerListener

	log logx.Logger
}

func NewRegistry(log logx.Logger) *Registry {
	return &Registry{log: log}
}

func (r *Registry) AddTriggerListener(l TriggerListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, l)
}

func (r *Registry) AddJobListener(l JobListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, l)
}

func (r *Registry) AddSchedulerListener(l SchedulerListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// RemoveTriggerListener removes the listener registered under name.
func (r *Registry) RemoveTriggerListener(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.triggers {
		if l.Name() == name {
			r.triggers = append(r.triggers[:i], r.triggers[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveJobListener removes the listener registered under name.
func (r *Registry) RemoveJobListener(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.jobs {
		if l.Name() == name {
			r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveSchedulerListener removes the listener registered under name.
func (r *Registry) RemoveSchedulerListener(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.listeners {
		if l.Name() == name {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) triggerListeners() []TriggerListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TriggerListener(nil), r.triggers...)
}

func (r *Registry) jobListeners() []JobListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]JobListener(nil), r.jobs...)
}

func (r *Registry) schedulerListeners() []SchedulerListener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SchedulerListener(nil), r.listeners...)
}

// TriggersFired notifies trigger listeners of a fired trigger and collects
// the veto verdict. The first veto stops the scan.
func (r *Registry) TriggersFired(ec *engine.ExecutionContext) (bool, error) {
	for _, l := range r.triggerListeners() {
		if err := l.TriggerFired(ec); err != nil {
			return false, fmt.Errorf("trigger listener %q: %w", l.Name(), err)
		}
		if l.VetoJobExecution(ec) {
			r.log.Debug("firing.veto", logx.String("listener", l.Name()),
				logx.String("trigger", ec.Trigger.Name()))
			return true, nil
		}
	}
	return false, nil
}

// TriggersComplete notifies trigger listeners of a computed completion
// instruction. The first error aborts.
func (r *Registry) TriggersComplete(ec *engine.ExecutionContext, code engine.Instruction) error {
	for _, l := range r.triggerListeners() {
		if err := l.TriggerComplete(ec, code); err != nil {
			return fmt.Errorf("trigger listener %q: %w", l.Name(), err)
		}
	}
	return nil
}

// JobsToBeExecuted notifies job listeners that a job is about to run.
func (r *Registry) JobsToBeExecuted(ec *engine.ExecutionContext) error {
	for _, l := range r.jobListeners() {
		if err := l.JobToBeExecuted(ec); err != nil {
			return fmt.Errorf("job listener %q: %w", l.Name(), err)
		}
	}
	return nil
}

// JobsWasVetoed notifies job listeners that a firing was vetoed.
func (r *Registry) JobsWasVetoed(ec *engine.ExecutionContext) error {
	for _, l := range r.jobListeners() {
		if err := l.JobExecutionVetoed(ec); err != nil {
			return fmt.Errorf("job listener %q: %w", l.Name(), err)
		}
	}
	return nil
}

// JobsWasExecuted notifies job listeners that execution finished, passing the
// job error if any.
func (r *Registry) JobsWasExecuted(ec *engine.ExecutionContext, jobErr *engine.JobError) error {
	for _, l := range r.jobListeners() {
		if err := l.JobWasExecuted(ec, jobErr); err != nil {
			return fmt.Errorf("job listener %q: %w", l.Name(), err)
		}
	}
	return nil
}

// SchedulerError fans an error report to scheduler listeners. Best-effort: a
// panicking listener is logged and skipped, never propagated into the shell.
func (r *Registry) SchedulerError(msg string, err error) {
	for _, l := range r.schedulerListeners() {
		r.safeNotify(l.Name(), func() { l.SchedulerError(msg, err) })
	}
}

// TriggerFinalized tells scheduler listeners a trigger will never fire again.
func (r *Registry) TriggerFinalized(tr engine.Trigger) {
	for _, l := range r.schedulerListeners() {
		r.safeNotify(l.Name(), func() { l.TriggerFinalized(tr) })
	}
}

// SchedulerShuttingDown tells scheduler listeners shutdown has begun.
func (r *Registry) SchedulerShuttingDown() {
	for _, l := range r.schedulerListeners() {
		r.safeNotify(l.Name(), func() { l.SchedulerShuttingDown() })
	}
}

func (r *Registry) safeNotify(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("listener.panic", logx.String("listener", name), logx.Any("panic", rec))
		}
	}()
	fn()
}
