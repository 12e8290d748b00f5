package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lborres/bantay/core"
)

// RateLimitStore keeps attempt buckets in a map. Elapsed buckets are dropped
// lazily on access and in bulk by Sweep.
type RateLimitStore struct {
	mu      sync.Mutex
	buckets map[string]*core.RateLimitBucket
	now     func() time.Time
}

var _ core.RateLimitStore = (*RateLimitStore)(nil)

func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{
		buckets: make(map[string]*core.RateLimitBucket),
		now:     time.Now,
	}
}

// live expects s.mu to be held.
func (s *RateLimitStore) live(key string, now time.Time) (*core.RateLimitBucket, bool) {
	b, ok := s.buckets[key]
	if !ok {
		return nil, false
	}
	if b.Elapsed(now) {
		delete(s.buckets, key)
		return nil, false
	}
	return b, true
}

func (s *RateLimitStore) Hit(_ context.Context, key string, limit int, window time.Duration) (core.RateLimitBucket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.live(key, now)
	if ok && b.Attempts >= limit {
		return *b, false, nil
	}
	if !ok {
		b = &core.RateLimitBucket{Key: key, WindowStart: now, Window: window}
		s.buckets[key] = b
	}
	b.Attempts++
	return *b, true, nil
}

func (s *RateLimitStore) Increment(_ context.Context, key string, window time.Duration) (core.RateLimitBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.live(key, now)
	if !ok {
		b = &core.RateLimitBucket{Key: key, WindowStart: now, Window: window}
		s.buckets[key] = b
	}
	b.Attempts++
	return *b, nil
}

func (s *RateLimitStore) Peek(_ context.Context, key string) (core.RateLimitBucket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.live(key, s.now())
	if !ok {
		return core.RateLimitBucket{}, false, nil
	}
	return *b, true, nil
}

func (s *RateLimitStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.buckets, key)
	return nil
}

// Sweep drops every bucket whose window has elapsed by now.
func (s *RateLimitStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key, b := range s.buckets {
		if b.Elapsed(now) {
			delete(s.buckets, key)
			count++
		}
	}
	return count, nil
}

func (s *RateLimitStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
