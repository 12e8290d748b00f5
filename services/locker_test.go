package services

import (
	"sync"
	"testing"
	"time"
)

// Requirement: Writers exclude readers of the same identity only.
func TestIdentityLocker_WriterExcludesReaders(t *testing.T) {
	locker := NewIdentityLocker()

	unlockWrite := locker.Lock("alice")

	acquired := make(chan struct{})
	go func() {
		unlock := locker.RLock("alice")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired the lock while a writer held it")
	case <-time.After(50 * time.Millisecond):
	}

	// Another identity is unaffected.
	unlockBob := locker.RLock("bob")
	unlockBob()

	unlockWrite()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired the lock after the writer released it")
	}
}

func TestIdentityLocker_ReleasesEntries(t *testing.T) {
	locker := NewIdentityLocker()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var unlock func()
			if i%4 == 0 {
				unlock = locker.Lock("alice")
			} else {
				unlock = locker.RLock("alice")
			}
			unlock()
			unlock() // double release is a no-op
		}(i)
	}
	wg.Wait()

	if n := locker.len(); n != 0 {
		t.Errorf("locker still holds %d entries", n)
	}
}
