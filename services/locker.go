package services

import "sync"

// IdentityLocker hands out one RWMutex per identity ID. Entries are reference
// counted and dropped once nobody holds or waits on them.
type IdentityLocker struct {
	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	sync.RWMutex
	refs int
}

func NewIdentityLocker() *IdentityLocker {
	return &IdentityLocker{locks: make(map[string]*identityLock)}
}

func (l *IdentityLocker) acquire(id string) *identityLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[id]
	if !ok {
		lock = &identityLock{}
		l.locks[id] = lock
	}
	lock.refs++
	return lock
}

func (l *IdentityLocker) release(id string, lock *identityLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, id)
	}
}

// RLock takes the shared side for id and returns its release func.
func (l *IdentityLocker) RLock(id string) func() {
	lock := l.acquire(id)
	lock.RLock()

	var once sync.Once
	return func() {
		once.Do(func() {
			lock.RUnlock()
			l.release(id, lock)
		})
	}
}

// Lock takes the exclusive side for id and returns its release func.
func (l *IdentityLocker) Lock(id string) func() {
	lock := l.acquire(id)
	lock.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			lock.Unlock()
			l.release(id, lock)
		})
	}
}

func (l *IdentityLocker) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
