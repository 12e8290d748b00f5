package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lborres/bantay/core"
)

const (
	DefaultTTL     = 30 * time.Second
	DefaultMaxSize = 1000
)

// SessionCache is a bounded, TTL-limited read-through cache for resolved
// sessions. Entries never outlive the session they hold, and a session
// evicted from here is simply read from storage again.
type SessionCache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	byIdentity map[string]map[string]struct{}
	ttl        time.Duration
	maxSize    int
	now        func() time.Time

	hits      int64
	misses    int64
	sets      int64
	deletes   int64
	evictions int64
}

type entry struct {
	session  core.Session
	storedAt time.Time
	deadline time.Time
}

func NewSessionCache(c core.CacheConfig) *SessionCache {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}

	return &SessionCache{
		entries:    make(map[string]*entry),
		byIdentity: make(map[string]map[string]struct{}),
		ttl:        c.TTL,
		maxSize:    c.MaxSize,
		now:        time.Now,
	}
}

// Get returns a copy of the cached session for tokenHash.
func (c *SessionCache) Get(tokenHash string) (*core.Session, error) {
	c.mu.RLock()
	e, ok := c.entries[tokenHash]
	c.mu.RUnlock()

	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return nil, core.ErrCacheNotFound
	}

	if !c.now().Before(e.deadline) {
		atomic.AddInt64(&c.misses, 1)
		c.mu.Lock()
		// Another writer may have replaced the entry meanwhile.
		if current, ok := c.entries[tokenHash]; ok && current == e {
			c.remove(tokenHash)
		}
		c.mu.Unlock()
		return nil, core.ErrCacheNotFound
	}

	atomic.AddInt64(&c.hits, 1)
	s := e.session
	return &s, nil
}

func (c *SessionCache) Set(tokenHash string, session *core.Session) error {
	if session == nil {
		return nil
	}

	now := c.now()
	deadline := now.Add(c.ttl)
	if session.ExpiresAt.Before(deadline) {
		deadline = session.ExpiresAt
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[tokenHash]; exists {
		c.remove(tokenHash)
	} else if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[tokenHash] = &entry{session: *session, storedAt: now, deadline: deadline}
	hashes, ok := c.byIdentity[session.IdentityID]
	if !ok {
		hashes = make(map[string]struct{})
		c.byIdentity[session.IdentityID] = hashes
	}
	hashes[tokenHash] = struct{}{}

	atomic.AddInt64(&c.sets, 1)
	return nil
}

func (c *SessionCache) Delete(tokenHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[tokenHash]; ok {
		c.remove(tokenHash)
		atomic.AddInt64(&c.deletes, 1)
	}
	return nil
}

// DeleteIdentity drops every cached session belonging to identityID.
func (c *SessionCache) DeleteIdentity(identityID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for hash := range c.byIdentity[identityID] {
		c.remove(hash)
		atomic.AddInt64(&c.deletes, 1)
	}
	return nil
}

func (c *SessionCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.byIdentity = make(map[string]map[string]struct{})
	return nil
}

func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *SessionCache) Stats() core.CacheStats {
	return core.CacheStats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Sets:      atomic.LoadInt64(&c.sets),
		Deletes:   atomic.LoadInt64(&c.deletes),
		Evictions: atomic.LoadInt64(&c.evictions),
		Size:      c.Len(),
		TTL:       c.ttl,
	}
}

// remove expects c.mu to be held for writing.
func (c *SessionCache) remove(tokenHash string) {
	e, ok := c.entries[tokenHash]
	if !ok {
		return
	}
	delete(c.entries, tokenHash)

	identityID := e.session.IdentityID
	if hashes, ok := c.byIdentity[identityID]; ok {
		delete(hashes, tokenHash)
		if len(hashes) == 0 {
			delete(c.byIdentity, identityID)
		}
	}
}

// evictOldest expects c.mu to be held for writing.
func (c *SessionCache) evictOldest() {
	var (
		oldestHash string
		oldestAt   time.Time
	)
	for hash, e := range c.entries {
		if oldestHash == "" || e.storedAt.Before(oldestAt) {
			oldestHash, oldestAt = hash, e.storedAt
		}
	}
	if oldestHash != "" {
		c.remove(oldestHash)
		atomic.AddInt64(&c.evictions, 1)
	}
}
