// Package scheduler owns the schedule table and drives firings end to end:
// a tick loop finds due triggers, builds fired bundles, and hands each one to
// an execution shell on its own goroutine (bounded by a concurrency permit).
//
// The Service is also the shell's facade: listener fan-out goes through the
// listeners registry, store acknowledgements go to the firing journal, and
// lifecycle signals are published on the event bus.
package scheduler
