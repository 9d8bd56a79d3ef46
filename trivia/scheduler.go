package trivia

import "time"

// Timer is a pending deferred action.
type Timer interface {
	// Stop cancels the action. It reports false if it already fired or was stopped.
	Stop() bool
}

// Scheduler runs f once after d without holding a goroutine while waiting.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
