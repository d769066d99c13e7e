package reconnect

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer is a pending callback.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or was stopped.
	Stop() bool
}

// Scheduler provides time and one-shot callbacks to the controller.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// ClockScheduler adapts a clockwork.Clock to Scheduler.
type ClockScheduler struct {
	clock clockwork.Clock
}

// NewClockScheduler wraps clock. A nil clock means the real clock.
func NewClockScheduler(clock clockwork.Clock) *ClockScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClockScheduler{clock: clock}
}

// Now returns the clock's current time.
func (s *ClockScheduler) Now() time.Time {
	return s.clock.Now()
}

// AfterFunc runs f on its own goroutine after d.
func (s *ClockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return s.clock.AfterFunc(d, f)
}
