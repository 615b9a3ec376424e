package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerCoalescesBursts(t *testing.T) {
	t.Parallel()

	d := newDebouncer(50 * time.Millisecond)

	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		d.Trigger(func() { calls.Add(1) })
	}

	assert.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, 10*time.Millisecond)

	// No stragglers after the interval.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDebouncerStopCancelsPending(t *testing.T) {
	t.Parallel()

	d := newDebouncer(50 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	// Triggers after Stop are rejected.
	d.Trigger(func() { calls.Add(1) })
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}
