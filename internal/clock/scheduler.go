// Package clock provides the time source and task scheduler used to drive
// reconciliation ticks and eviction rounds. Production code runs on the wall
// clock; tests substitute a VirtualScheduler to step time deterministically.
package clock

import (
	"time"

	k8sclock "k8s.io/utils/clock"
)

// Cancel stops a scheduled task if it has not started yet. Calling it more than once is safe.
type Cancel func()

// Scheduler runs tasks after a delay measured on its own clock
type Scheduler interface {
	// Now returns the current time of the scheduler's clock
	Now() time.Time

	// Schedule runs task once after delay. A delay <= 0 runs the task as soon as possible.
	Schedule(delay time.Duration, task func()) Cancel
}

type realScheduler struct {
	clock k8sclock.WithDelayedExecution
}

// NewScheduler returns a Scheduler backed by c. When c is nil the wall clock is used.
func NewScheduler(c k8sclock.WithDelayedExecution) Scheduler {
	if c == nil {
		c = k8sclock.RealClock{}
	}
	return &realScheduler{clock: c}
}

func (s *realScheduler) Now() time.Time {
	return s.clock.Now()
}

func (s *realScheduler) Schedule(delay time.Duration, task func()) Cancel {
	if delay < 0 {
		delay = 0
	}
	timer := s.clock.AfterFunc(delay, task)
	return func() {
		timer.Stop()
	}
}
