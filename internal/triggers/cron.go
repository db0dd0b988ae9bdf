package triggers

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"jobshell/internal/engine"
)

// cronParser accepts the standard 5-field spec plus descriptors
// ("@daily", "@every 55m").
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Cron fires according to a cron expression.
type Cron struct {
	name   string
	spec   string
	sched  cron.Schedule
	policy Policy

	mu      sync.Mutex
	prev    time.Time
	next    time.Time
	hasNext bool
}

// NewCron parses spec and creates a cron trigger. The first firing is the
// schedule's next activation after now.
func NewCron(name, spec string, policy Policy) (*Cron, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("cron spec %q: %w", spec, err)
	}
	t := &Cron{name: name, spec: spec, sched: sched, policy: policy}
	t.next = sched.Next(time.Now())
	t.hasNext = !t.next.IsZero()
	return t, nil
}

func (t *Cron) Name() string { return t.name }

// Spec returns the original cron expression, for diagnostics.
func (t *Cron) Spec() string { return t.spec }

// Triggered advances the trigger's scheduling state for a firing at now.
func (t *Cron) Triggered(now time.Time) (prev time.Time, next time.Time, hasNext bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev = t.prev
	t.prev = now
	t.next = t.sched.Next(now)
	t.hasNext = !t.next.IsZero()
	return prev, t.next, t.hasNext
}

func (t *Cron) NextFireTime() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next, t.hasNext
}

func (t *Cron) ExecutionComplete(ec *engine.ExecutionContext, jobErr *engine.JobError) (engine.Instruction, error) {
	return completionInstruction(t, t.policy, ec, jobErr)
}
