package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"jobshell/internal/engine"
	"jobshell/internal/eventbus"
	"jobshell/internal/listeners"
	"jobshell/internal/store"
	logx "jobshell/pkg/logx"
)

// Service schedules triggers and runs their firings. It implements
// engine.Scheduler for the shells it spawns.
type Service struct {
	cfg      Config
	log      logx.Logger
	factory  engine.JobFactory
	registry *listeners.Registry
	journal  *store.Journal // nil disables persistence
	bus      eventbus.Bus   // nil disables events

	mu      sync.Mutex
	entries map[string]*entry
	shells  map[*engine.RunShell]struct{}

	permits      chan struct{}
	wg           sync.WaitGroup
	shuttingDown atomic.Bool
}

// New builds a scheduler service. journal and bus may be nil.
func New(cfg Config, factory engine.JobFactory, registry *listeners.Registry, journal *store.Journal, bus eventbus.Bus, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:      cfg,
		log:      log,
		factory:  factory,
		registry: registry,
		journal:  journal,
		bus:      bus,
		entries:  make(map[string]*entry),
		shells:   make(map[*engine.RunShell]struct{}),
		permits:  make(chan struct{}, cfg.MaxConcurrent),
	}
}

// ScheduleJob registers a detail/trigger pair. Trigger names must be unique.
func (s *Service) ScheduleJob(detail *engine.JobDetail, tr ScheduledTrigger) error {
	if detail == nil || detail.Name == "" {
		return fmt.Errorf("job detail with a name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := tr.Name()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("trigger %q is already scheduled", name)
	}
	s.entries[name] = &entry{detail: detail, trigger: tr}
	s.log.Info("schedule.added",
		logx.String("trigger", name),
		logx.String("job", detail.Name),
		logx.String("type", detail.Type))
	return nil
}

// UnscheduleJob removes a trigger from the schedule table. In-flight firings
// for it are unaffected.
func (s *Service) UnscheduleJob(triggerName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[triggerName]; !ok {
		return false
	}
	delete(s.entries, triggerName)
	s.log.Info("schedule.removed", logx.String("trigger", triggerName))
	return true
}

// Listeners exposes the listener registry for external registration.
func (s *Service) Listeners() *listeners.Registry { return s.registry }

// Shutdown stops accepting firings, signals every in-flight shell to abandon
// its retry loops, notifies scheduler listeners, and waits for in-flight
// firings until ctx expires.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.shuttingDown.Swap(true) {
		return nil
	}
	s.log.Info("scheduler.stopping")

	s.mu.Lock()
	for sh := range s.shells {
		sh.RequestShutdown()
	}
	s.mu.Unlock()

	s.registry.SchedulerShuttingDown()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler.stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler.stop_timeout", logx.Err(ctx.Err()))
		return ctx.Err()
	}
}

// fire spawns a shell for one fired bundle. It blocks until a concurrency
// permit is available or the scheduler stops.
func (s *Service) fire(ctx context.Context, bundle *engine.FiredBundle) {
	select {
	case s.permits <- struct{}{}:
	case <-ctx.Done():
		return
	}
	if s.shuttingDown.Load() {
		<-s.permits
		return
	}

	var opts []engine.Option
	if s.cfg.CompleteRetryInterval > 0 || s.cfg.VetoedRetryInterval > 0 {
		complete, vetoed := s.cfg.CompleteRetryInterval, s.cfg.VetoedRetryInterval
		if complete <= 0 {
			complete = 15 * time.Second
		}
		if vetoed <= 0 {
			vetoed = 5 * time.Second
		}
		opts = append(opts, engine.WithRetryIntervals(complete, vetoed))
	}

	shell := engine.NewRunShell(bundle, s.log, opts...)
	if err := shell.Initialize(s); err != nil {
		// Already reported to scheduler listeners by the shell.
		s.log.Error("firing.init_failed", logx.String("firing", shell.JobName()), logx.Err(err))
		<-s.permits
		return
	}

	s.mu.Lock()
	s.shells[shell] = struct{}{}
	s.mu.Unlock()

	s.publish(eventbus.Event{
		Type:    eventbus.TypeFiringStarted,
		Job:     bundle.JobDetail.Name,
		Trigger: bundle.Trigger.Name(),
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.shells, shell)
			s.mu.Unlock()
			<-s.permits
		}()

		result := shell.Run(ctx)
		s.publish(eventbus.Event{
			Type:    eventbus.TypeFiringFinished,
			Job:     bundle.JobDetail.Name,
			Trigger: bundle.Trigger.Name(),
			Result:  result.String(),
		})
	}()
}

func (s *Service) publish(e eventbus.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

// ---- engine.Scheduler facade ----

func (s *Service) JobFactory() engine.JobFactory { return s.factory }

func (s *Service) IsShuttingDown() bool { return s.shuttingDown.Load() }

func (s *Service) NotifySchedulerListenersError(msg string, err error) {
	s.registry.SchedulerError(msg, err)
}

func (s *Service) NotifySchedulerListenersFinalized(tr engine.Trigger) {
	s.registry.TriggerFinalized(tr)
	// A finalized trigger will never fire again; drop it from the table.
	s.UnscheduleJob(tr.Name())
}

func (s *Service) NotifyTriggerListenersFired(ec *engine.ExecutionContext) (bool, error) {
	return s.registry.TriggersFired(ec)
}

func (s *Service) NotifyJobListenersWasVetoed(ec *engine.ExecutionContext) error {
	return s.registry.JobsWasVetoed(ec)
}

func (s *Service) NotifyJobListenersToBeExecuted(ec *engine.ExecutionContext) error {
	return s.registry.JobsToBeExecuted(ec)
}

func (s *Service) NotifyJobListenersWasExecuted(ec *engine.ExecutionContext, jobErr *engine.JobError) error {
	return s.registry.JobsWasExecuted(ec, jobErr)
}

func (s *Service) NotifyTriggerListenersComplete(ec *engine.ExecutionContext, code engine.Instruction) error {
	return s.registry.TriggersComplete(ec, code)
}

func (s *Service) NotifyJobStoreJobComplete(tr engine.Trigger, jd *engine.JobDetail, code engine.Instruction) error {
	if s.journal == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.journal.RecordComplete(ctx, journalEntry(tr, jd, code))
}

func (s *Service) NotifyJobStoreJobVetoed(tr engine.Trigger, jd *engine.JobDetail, code engine.Instruction) error {
	if s.journal == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.journal.RecordVetoed(ctx, journalEntry(tr, jd, code))
}

func journalEntry(tr engine.Trigger, jd *engine.JobDetail, code engine.Instruction) store.Entry {
	return store.Entry{
		JobName:     jd.Name,
		JobType:     jd.Type,
		TriggerName: tr.Name(),
		Instruction: code.String(),
	}
}
