package scheduler

import (
	"sync"
	"testing"
	"time"

	"studyhall/domain/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRegistryEvictsOnRelease(t *testing.T) {
	t.Parallel()

	r := NewLockRegistry()

	release := r.Acquire(entities.SlotID(100))
	assert.Equal(t, 1, r.Len())

	release()
	assert.Equal(t, 0, r.Len(), "released locks must not linger")

	// Double release is a no-op.
	release()
	assert.Equal(t, 0, r.Len())
}

func TestLockRegistryMutualExclusion(t *testing.T) {
	t.Parallel()

	r := NewLockRegistry()
	slot := entities.SlotID(42)

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := r.Acquire(slot)
			defer release()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, r.Len())
}

func TestLockRegistryAcquireAllOrdering(t *testing.T) {
	t.Parallel()

	r := NewLockRegistry()
	a := entities.SlotID(1)
	b := entities.SlotID(2)

	// Opposing acquisition orders must not deadlock; AcquireAll sorts
	// internally.
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				release := r.AcquireAll(a, b)
				release()
			}()
			go func() {
				defer wg.Done()
				release := r.AcquireAll(b, a)
				release()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		require.Fail(t, "deadlock between opposing AcquireAll orders")
	}

	assert.Equal(t, 0, r.Len())
}

func TestLockRegistryAcquireAllDeduplicates(t *testing.T) {
	t.Parallel()

	r := NewLockRegistry()
	slot := entities.SlotID(7)

	release := r.AcquireAll(slot, slot, slot)
	assert.Equal(t, 1, r.Len())
	release()
	assert.Equal(t, 0, r.Len())
}
