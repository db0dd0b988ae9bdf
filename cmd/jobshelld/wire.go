package main

import (
	"fmt"
	"time"

	"jobshell/internal/config"
	"jobshell/internal/engine"
	"jobshell/internal/scheduler"
	"jobshell/internal/store"
	"jobshell/internal/triggers"
	logx "jobshell/pkg/logx"
)

func logConfig(c config.LoggingConfig) logx.Config {
	out := logx.Config{Level: c.Level, Console: true}
	if c.Console != nil {
		out.Console = *c.Console
	}
	if c.File != nil {
		out.File = logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path}
	}
	return out
}

func journalConfig(c *config.JournalConfig) (store.Config, error) {
	busy, err := config.ParseDurationOrDefault("journal.busy_timeout", c.BusyTimeout, 5*time.Second)
	if err != nil {
		return store.Config{}, err
	}
	retain, err := config.ParseDurationField("journal.retain", c.Retain)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{Path: c.Path, BusyTimeout: busy, Retain: retain}, nil
}

func schedulerConfig(c config.SchedulerConfig) (scheduler.Config, error) {
	tick, err := config.ParseDurationField("scheduler.tick_interval", c.TickInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	complete, err := config.ParseDurationField("scheduler.complete_retry_interval", c.CompleteRetryInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	vetoed, err := config.ParseDurationField("scheduler.vetoed_retry_interval", c.VetoedRetryInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		MaxConcurrent:         c.MaxConcurrent,
		TickInterval:          tick,
		CompleteRetryInterval: complete,
		VetoedRetryInterval:   vetoed,
	}, nil
}

// buildSchedule turns the config's job declarations into scheduled triggers.
func buildSchedule(cfg *config.Config, sched *scheduler.Service) error {
	for _, j := range cfg.Jobs {
		detail := &engine.JobDetail{Name: j.Name, Type: j.Type, Data: j.Data}
		for _, t := range j.Triggers {
			tr, err := buildTrigger(t)
			if err != nil {
				return fmt.Errorf("job %q: %w", j.Name, err)
			}
			if err := sched.ScheduleJob(detail, tr); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildTrigger(t config.TriggerConfig) (scheduler.ScheduledTrigger, error) {
	policy := triggers.Policy{MaxRefires: t.MaxRefires}
	if t.Cron != "" {
		return triggers.NewCron(t.Name, t.Cron, policy)
	}
	every, err := config.ParseDurationField("trigger "+t.Name+": every", t.Every)
	if err != nil {
		return nil, err
	}
	return triggers.NewInterval(t.Name, every, t.RunLimit, policy)
}
