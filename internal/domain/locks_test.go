package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLocksSerializeSameID(t *testing.T) {
	locks := newActivityLocks()

	const workers = 16
	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			unlock := locks.lock("a1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestActivityLocksReleaseEntries(t *testing.T) {
	locks := newActivityLocks()

	unlock := locks.lock("a1")
	other := locks.lock("a2")

	locks.mu.Lock()
	held := len(locks.locks)
	locks.mu.Unlock()
	require.Equal(t, 2, held)

	unlock()
	other()

	locks.mu.Lock()
	held = len(locks.locks)
	locks.mu.Unlock()
	assert.Zero(t, held, "entries are reaped once the last holder unlocks")
}

func TestActivityLocksIndependentIDs(t *testing.T) {
	locks := newActivityLocks()

	unlock := locks.lock("a1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		other := locks.lock("a2")
		other()
		close(done)
	}()

	<-done // a different activity is not blocked by a1's holder
}
