package domain

import "sync"

// activityLocks serializes writes per activity id. The revote
// find-then-write sequence and state transitions must not interleave for the
// same activity; different activities proceed concurrently. Entries are
// refcounted and dropped when the last holder unlocks, so the map stays
// bounded by in-flight writes rather than by every activity ever touched.
type activityLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newActivityLocks() *activityLocks {
	return &activityLocks{locks: make(map[string]*lockEntry)}
}

func (l *activityLocks) lock(activityID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[activityID]
	if !ok {
		entry = &lockEntry{}
		l.locks[activityID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, activityID)
		}
		l.mu.Unlock()
	}
}
