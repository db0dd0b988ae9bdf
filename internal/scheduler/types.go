package scheduler

import (
	"time"

	"jobshell/internal/engine"
)

// ScheduledTrigger is what the tick loop needs beyond the engine's trigger
// contract: a way to advance the schedule when a firing starts.
type ScheduledTrigger interface {
	engine.Trigger

	// Triggered marks a firing at now and returns the previous and next fire
	// times. hasNext false means the trigger will never fire again.
	Triggered(now time.Time) (prev, next time.Time, hasNext bool)
}

// Config tunes the scheduler service.
type Config struct {
	// MaxConcurrent bounds in-flight firings (default 4).
	MaxConcurrent int
	// TickInterval is the due-trigger poll period (default 500ms).
	TickInterval time.Duration
	// CompleteRetryInterval and VetoedRetryInterval are handed to each shell's
	// store-acknowledgement retry loops. Zero keeps the engine defaults.
	CompleteRetryInterval time.Duration
	VetoedRetryInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 500 * time.Millisecond
	}
	return c
}

// entry pairs a job detail with the trigger that fires it.
type entry struct {
	detail  *engine.JobDetail
	trigger ScheduledTrigger
}
