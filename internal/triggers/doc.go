// Package triggers ships the trigger implementations the daemon schedules
// with: a fixed-interval trigger and a cron-expression trigger (robfig/cron
// does the next-fire-time math).
//
// Both kinds share one completion policy: a declared job failure may earn a
// bounded number of immediate re-executions, an unschedule request from the
// job turns into a trigger-error instruction, and an exhausted schedule
// completes the trigger. The run shell stays oblivious to all of this: it
// only sees the engine.Trigger interface.
package triggers
