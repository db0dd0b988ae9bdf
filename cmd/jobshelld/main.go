package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"jobshell/internal/config"
	"jobshell/internal/eventbus"
	"jobshell/internal/jobs"
	"jobshell/internal/listeners"
	"jobshell/internal/scheduler"
	"jobshell/internal/store"
	logx "jobshell/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	boot := logx.NewConsole("info")
	mgr := config.NewManager(cfgPath, boot)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logConfig(cfg.Logging))
	defer logSvc.Close()

	var journal *store.Journal
	if cfg.Journal != nil {
		jc, err := journalConfig(cfg.Journal)
		if err != nil {
			return err
		}
		journal, err = store.Open(jc, log.With(logx.String("svc", "journal")))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer journal.Close()
	}

	registry := listeners.NewRegistry(log.With(logx.String("svc", "listeners")))
	if cfg.Alerts != nil && cfg.Alerts.Telegram != nil {
		alerter, err := listeners.NewTelegramAlerter(listeners.AlerterConfig{
			Token:      cfg.Alerts.Telegram.Token,
			ChatID:     cfg.Alerts.Telegram.ChatID,
			RatePerMin: cfg.Alerts.Telegram.RatePerMin,
		}, log.With(logx.String("svc", "alerter")))
		if err != nil {
			return fmt.Errorf("telegram alerter: %w", err)
		}
		defer alerter.Close()
		registry.AddSchedulerListener(alerter)
	}

	schedCfg, err := schedulerConfig(cfg.Scheduler)
	if err != nil {
		return err
	}

	factory := jobs.NewRegistry(log.With(logx.String("svc", "jobs"))).WithBuiltins()
	bus := eventbus.New()
	sched := scheduler.New(schedCfg, factory, registry, journal, bus, log.With(logx.String("svc", "scheduler")))

	if err := buildSchedule(cfg, sched); err != nil {
		return err
	}

	// Tail firing lifecycle events at debug interest.
	events, unsub := bus.Subscribe(32)
	defer unsub()
	go func() {
		for e := range events {
			log.Debug("event",
				logx.String("type", e.Type),
				logx.String("job", e.Job),
				logx.String("trigger", e.Trigger),
				logx.String("result", e.Result))
		}
	}()

	// Hot-reload: logging changes apply live; schedule changes need a restart.
	updates := mgr.Subscribe(1)
	defer mgr.Unsubscribe(updates)
	go func() {
		for next := range updates {
			logSvc.Apply(logConfig(next.Logging))
			log.Info("config.applied", logx.String("path", cfgPath))
		}
	}()
	go func() { _ = mgr.Watch(ctx) }()

	go sched.Run(ctx)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("daemon.ready", logx.String("config", cfgPath), logx.Int("jobs", len(cfg.Jobs)))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return sched.Shutdown(stopCtx)
}
