package services

import "time"

// Scheduler abstracts delayed cancelable callbacks and the clock so room
// deadlines are testable without real time. Callbacks run on the scheduler's
// own goroutine; the room re-enqueues them into its serialized inbox before
// touching any state.
type Scheduler interface {
	Now() time.Time
	Schedule(d time.Duration, fn func()) TimerHandle
}

type TimerHandle interface {
	// Stop cancels the timer. Stopping an already-fired or stopped timer is
	// a no-op.
	Stop()
}

type wallClockScheduler struct{}

// NewScheduler returns the production scheduler backed by time.AfterFunc.
func NewScheduler() Scheduler {
	return wallClockScheduler{}
}

func (wallClockScheduler) Now() time.Time {
	return time.Now()
}

func (wallClockScheduler) Schedule(d time.Duration, fn func()) TimerHandle {
	return wallTimer{timer: time.AfterFunc(d, fn)}
}

type wallTimer struct {
	timer *time.Timer
}

func (t wallTimer) Stop() {
	t.timer.Stop()
}
