package scheduler

import (
	"context"
	"time"
)

// Clock abstracts time so lifecycle tests can drive slots through their
// phases without real waiting.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// NewClock returns the wall clock
func NewClock() Clock {
	return realClock{}
}

// sleepUntil blocks until the clock reaches target or ctx is cancelled.
// Returns false on cancellation.
func sleepUntil(ctx context.Context, clock Clock, target time.Time) bool {
	d := target.Sub(clock.Now())
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
