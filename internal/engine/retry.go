package engine

import (
	"context"
	"fmt"
	"time"

	logx "jobshell/pkg/logx"
)

// Persistence acknowledgement retry loops.
//
// Both loops sleep first, then retry, until the store accepts the record or
// shutdown is requested (either via the shell's own flag or the scheduler
// reporting it is already shutting down). A context cancellation during the
// backoff sleep is consumed and treated as "try again immediately", not as
// abandonment: transient cancellation must not drop an acknowledgement the
// store will eventually accept. The cancellation wake fires at most once so
// an already-cancelled context cannot turn the backoff into a busy loop.

// completeTriggerRetryLoop keeps attempting to record "job complete".
// It reports the store error on the first attempt and every 4th attempt
// thereafter, to avoid flooding scheduler listeners while a store outage
// lasts. Returns false when abandoned due to shutdown.
func (s *RunShell) completeTriggerRetryLoop(ctx context.Context, code Instruction) bool {
	jd := s.ec.JobDetail
	ctxWake := ctx.Done()

	attempt := 0
	for !s.shutdown.IsSet() && !s.sched.IsShuttingDown() {
		if !s.retrySleep(s.completeRetryInterval, &ctxWake) {
			continue // woken by shutdown; loop condition decides
		}

		attempt++
		err := s.sched.NotifyJobStoreJobComplete(s.ec.Trigger, jd, code)
		if err == nil {
			s.log.Info("store.ack_recovered", logx.String("job", jd.Name), logx.Int("attempts", attempt))
			return true
		}
		if (attempt-1)%4 == 0 {
			s.sched.NotifySchedulerListenersError(
				fmt.Sprintf("an error occurred while marking executed job complete (will continue attempts). job=%q attempt=%d",
					jd.Name, attempt), err)
		}
		s.log.Debug("store.retry_failed", logx.String("job", jd.Name), logx.Int("attempt", attempt), logx.Err(err))
	}
	return false
}

// vetoedJobRetryLoop keeps attempting to record "job vetoed". Vetoes are
// rare, so every failed attempt is reported. Returns false when abandoned
// due to shutdown.
func (s *RunShell) vetoedJobRetryLoop(ctx context.Context, code Instruction) bool {
	jd := s.ec.JobDetail
	ctxWake := ctx.Done()

	attempt := 0
	for !s.shutdown.IsSet() && !s.sched.IsShuttingDown() {
		if !s.retrySleep(s.vetoedRetryInterval, &ctxWake) {
			continue
		}

		attempt++
		err := s.sched.NotifyJobStoreJobVetoed(s.ec.Trigger, jd, code)
		if err == nil {
			s.log.Info("store.ack_recovered", logx.String("job", jd.Name), logx.Int("attempts", attempt))
			return true
		}
		s.sched.NotifySchedulerListenersError(
			fmt.Sprintf("an error occurred while marking vetoed job. job=%q attempt=%d", jd.Name, attempt), err)
		s.log.Debug("store.retry_failed", logx.String("job", jd.Name), logx.Int("attempt", attempt), logx.Err(err))
	}
	return false
}

// retrySleep blocks for the backoff interval. It returns true when the
// caller should attempt the store operation (full sleep elapsed, or a
// context cancellation cut the sleep short), false when the shutdown flag
// woke it (caller re-checks the loop condition). *ctxWake is nilled after
// its first delivery so cancellation only short-circuits one sleep.
func (s *RunShell) retrySleep(d time.Duration, ctxWake *<-chan struct{}) bool {
	tmr := time.NewTimer(d)
	select {
	case <-tmr.C:
		return true
	case <-s.shutdown.Done():
		if !tmr.Stop() {
			<-tmr.C
		}
		return false
	case <-*ctxWake:
		if !tmr.Stop() {
			<-tmr.C
		}
		*ctxWake = nil
		return true
	}
}
