package listeners

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"jobshell/internal/engine"
	logx "jobshell/pkg/logx"
)

// AlerterConfig configures the Telegram alert listener.
type AlerterConfig struct {
	Token  string
	ChatID int64
	// RatePerMin caps alert messages per minute (default 20). Errors beyond
	// the cap are dropped from Telegram, never from the log.
	RatePerMin int
}

// TelegramAlerter is a SchedulerListener that forwards scheduler errors (and
// shutdown/finalized signals at debug interest) to a Telegram chat.
//
// Sends happen on a worker goroutine with a bounded queue so a slow Telegram
// API can never stall a firing.
type TelegramAlerter struct {
	bot     *tele.Bot
	chat    tele.Recipient
	limiter *rate.Limiter
	log     logx.Logger

	queue  chan string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTelegramAlerter builds the alerter and starts its send worker.
func NewTelegramAlerter(cfg AlerterConfig, log logx.Logger) (*TelegramAlerter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: false})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}

	rpm := cfg.RatePerMin
	if rpm <= 0 {
		rpm = 20
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &TelegramAlerter{
		bot:     bot,
		chat:    tele.ChatID(cfg.ChatID),
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		log:     log,
		queue:   make(chan string, 64),
		cancel:  cancel,
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.worker(ctx)
	}()
	return a, nil
}

func (a *TelegramAlerter) Name() string { return "telegram-alerter" }

func (a *TelegramAlerter) SchedulerError(msg string, err error) {
	a.enqueue(fmt.Sprintf("⚠️ scheduler error\n%s\n- err=%v", msg, err))
}

func (a *TelegramAlerter) TriggerFinalized(tr engine.Trigger) {
	a.enqueue(fmt.Sprintf("trigger finalized: %s (will never fire again)", tr.Name()))
}

func (a *TelegramAlerter) SchedulerShuttingDown() {
	a.enqueue("scheduler shutting down")
}

// Close stops the send worker. Queued alerts that have not been sent yet are
// dropped.
func (a *TelegramAlerter) Close() {
	a.cancel()
	a.wg.Wait()
}

func (a *TelegramAlerter) enqueue(msg string) {
	if !a.limiter.Allow() {
		return
	}
	// Never block the caller.
	select {
	case a.queue <- msg:
	default:
	}
}

func (a *TelegramAlerter) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.queue:
			if _, err := a.bot.Send(a.chat, truncate(msg, 3500)); err != nil {
				a.log.Warn("alert.send_failed", logx.Err(err))
				// Don't hammer the API while it is unhappy.
				select {
				case <-ctx.Done():
					return
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
