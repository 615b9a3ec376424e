package scheduler

import (
	"sort"
	"sync"

	"studyhall/domain/entities"
)

// slotLock is a refcounted mutex for one slot id.
type slotLock struct {
	mu   sync.Mutex
	refs int
}

// LockRegistry hands out per-slot mutexes. Entries are refcounted and
// evicted when the last holder releases, so locks for inactive slots
// never accumulate.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[entities.SlotID]*slotLock
}

// NewLockRegistry creates an empty lock registry
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{
		locks: make(map[entities.SlotID]*slotLock),
	}
}

// Acquire blocks until the slot's lock is held. The returned release
// function must be called exactly once.
func (r *LockRegistry) Acquire(slotID entities.SlotID) (release func()) {
	r.mu.Lock()
	l, ok := r.locks[slotID]
	if !ok {
		l = &slotLock{}
		r.locks[slotID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			r.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(r.locks, slotID)
			}
			r.mu.Unlock()
		})
	}
}

// AcquireAll locks every given slot in sorted id order, so concurrent
// multi-slot callers with overlapping sets cannot deadlock. Duplicate
// ids are collapsed. The returned release function unlocks in reverse
// order.
func (r *LockRegistry) AcquireAll(slotIDs ...entities.SlotID) (release func()) {
	unique := make(map[entities.SlotID]struct{}, len(slotIDs))
	for _, id := range slotIDs {
		unique[id] = struct{}{}
	}
	sorted := make([]entities.SlotID, 0, len(unique))
	for id := range unique {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	releases := make([]func(), 0, len(sorted))
	for _, id := range sorted {
		releases = append(releases, r.Acquire(id))
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(releases) - 1; i >= 0; i-- {
				releases[i]()
			}
		})
	}
}

// Len reports how many slot locks currently exist. Used by tests to
// verify the registry does not leak.
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
