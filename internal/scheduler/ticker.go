package scheduler

import (
	"context"
	"time"

	"jobshell/internal/engine"
	logx "jobshell/pkg/logx"
)

// Run drives the tick loop until ctx is cancelled or Shutdown is called.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("scheduler.started",
		logx.Int("max_concurrent", s.cfg.MaxConcurrent),
		logx.Duration("tick", s.cfg.TickInterval))

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.shuttingDown.Load() {
				return
			}
			s.fireDue(ctx, now)
		}
	}
}

// fireDue fires every trigger whose next fire time is at or before now.
func (s *Service) fireDue(ctx context.Context, now time.Time) {
	for _, d := range s.dueEntries(now) {
		prev, next, hasNext := d.e.trigger.Triggered(now)

		bundle := &engine.FiredBundle{
			JobDetail:         d.e.detail,
			Trigger:           d.e.trigger,
			FireTime:          now,
			ScheduledFireTime: d.scheduled,
			PrevFireTime:      prev,
		}
		if hasNext {
			bundle.NextFireTime = next
		}
		s.fire(ctx, bundle)
	}
}

type dueEntry struct {
	e         *entry
	scheduled time.Time
}

func (s *Service) dueEntries(now time.Time) []dueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []dueEntry
	for _, e := range s.entries {
		next, ok := e.trigger.NextFireTime()
		if ok && !next.After(now) {
			due = append(due, dueEntry{e: e, scheduled: next})
		}
	}
	return due
}
