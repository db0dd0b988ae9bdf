package engine

import "time"

// Instruction is the trigger's verdict on a finished (or vetoed) execution.
// It drives the final step of the run loop; ReExecuteJob is the only variant
// that loops.
type Instruction int

const (
	InstructionNoOp Instruction = iota
	InstructionReExecuteJob
	InstructionSetTriggerComplete
	InstructionSetAllJobTriggersComplete
	InstructionSetTriggerError
	InstructionSetAllJobTriggersError
)

func (i Instruction) String() string {
	switch i {
	case InstructionNoOp:
		return "noop"
	case InstructionReExecuteJob:
		return "re_execute_job"
	case InstructionSetTriggerComplete:
		return "set_trigger_complete"
	case InstructionSetAllJobTriggersComplete:
		return "set_all_job_triggers_complete"
	case InstructionSetTriggerError:
		return "set_trigger_error"
	case InstructionSetAllJobTriggersError:
		return "set_all_job_triggers_error"
	default:
		return "unknown"
	}
}

// Trigger is the scheduling object that owns the decision of when/whether to
// fire again and what a completed execution means.
//
// The store owns trigger state; the shell holds a reference for one firing.
// ExecutionComplete is called with a nil jobErr both for successful runs and
// for vetoed firings. An error return (or a panic) is treated by the shell as
// a bug in the trigger implementation: it is reported and the firing
// continues with InstructionNoOp.
type Trigger interface {
	Name() string
	ExecutionComplete(ec *ExecutionContext, jobErr *JobError) (Instruction, error)

	// NextFireTime reports the trigger's next scheduled firing.
	// ok=false means the trigger will never fire again (finalized).
	NextFireTime() (next time.Time, ok bool)
}
