package engine

import "sync"

// ShutdownFlag is a monotonic false→true flag. Set is idempotent; there is
// no unset. One goroutine sets it (the scheduler's shutdown path), the
// firing's goroutine observes it, so the closed-channel form gives both a
// pollable flag and a wakeup for timed waits.
type ShutdownFlag struct {
	once sync.Once
	done chan struct{}
}

func NewShutdownFlag() *ShutdownFlag {
	return &ShutdownFlag{done: make(chan struct{})}
}

// Set transitions the flag to true. Safe to call multiple times and from
// multiple goroutines.
func (f *ShutdownFlag) Set() {
	f.once.Do(func() { close(f.done) })
}

func (f *ShutdownFlag) IsSet() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the flag is set. Suitable for select.
func (f *ShutdownFlag) Done() <-chan struct{} { return f.done }
