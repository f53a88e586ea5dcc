package session

import "time"

// Ticker is a cancellable source of periodic ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock abstracts wall-clock reads and ticker creation so the countdown
// and the proctor throttle can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }
