// Package engine contains the execution shell at the heart of jobshell: the
// code path that takes one fired trigger and drives it through listener
// notification, job execution, trigger reconciliation, and job-store
// acknowledgement without ever letting a failure in one stage corrupt the
// others or escape to the host process.
//
// # Model
//
// A scheduler (the Scheduler facade, implemented elsewhere) hands the shell a
// FiredBundle: an immutable snapshot of the job definition, the trigger, and
// the firing's timing metadata. The shell instantiates the job through the
// scheduler's JobFactory, then runs a strict sequence per attempt:
//
//  1. beginning notifications (trigger listeners may veto, job listeners may
//     gate execution)
//  2. job execution (wall-clock timed, panic-safe)
//  3. job-listener completion notifications
//  4. trigger reconciliation, producing an Instruction
//  5. trigger-listener completion notifications (+ finalized check)
//  6. instruction application: re-execute loops back to 1 with the same job
//     instance; everything else is acknowledged against the job store
//
// # Failure containment
//
// Run never returns an error. Every failure surface is classified: declared
// job failures (*JobError) become data for the trigger, undeclared failures
// and panics become synthetic job errors, trigger bugs degrade to a NoOp
// instruction, listener failures abort the firing without touching trigger
// or store state, and store failures enter bounded-backoff retry loops that
// only give up when shutdown is requested. The one deliberate exception is
// Initialize: a job that cannot be instantiated fails the firing up front.
//
// # Shutdown
//
// Each shell owns a monotonic ShutdownFlag. RequestShutdown (wired to the
// scheduler's shutdown path) sets it once; the retry loops observe it after
// every wake and abandon their acknowledgement, which Run surfaces as
// ResultAbandoned rather than silently returning.
package engine
