package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lborres/bantay/adapters/memory"
	"github.com/lborres/bantay/core"
)

// FakeStorage is a test-only core.StorageAdapter. It delegates to the
// in-memory adapter and exposes error fields and call counters for behavior
// injection.
type FakeStorage struct {
	*memory.Storage

	mu                sync.RWMutex
	createIdentityErr error
	getIdentityErr    error
	getSessionErr     error
	createSessionErr  error
	createTokenErr    error
	rotateErr         error

	touchSessionCalls int
	rotateCalls       int
	getTokenCalls     int

	// afterGetIdentity and afterGetSession run once, after the next read.
	afterGetIdentity func(id string)
	afterGetSession  func()
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{Storage: memory.NewStorage()}
}

func (f *FakeStorage) CreateIdentity(ctx context.Context, identity *core.Identity) error {
	f.mu.RLock()
	err := f.createIdentityErr
	f.mu.RUnlock()
	if err != nil {
		return err
	}
	return f.Storage.CreateIdentity(ctx, identity)
}

func (f *FakeStorage) GetIdentityByID(ctx context.Context, id string) (*core.Identity, error) {
	f.mu.Lock()
	err := f.getIdentityErr
	hook := f.afterGetIdentity
	f.afterGetIdentity = nil
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	identity, err := f.Storage.GetIdentityByID(ctx, id)
	if hook != nil {
		hook(id)
	}
	return identity, err
}

func (f *FakeStorage) GetIdentityByEmail(ctx context.Context, email string) (*core.Identity, error) {
	f.mu.RLock()
	err := f.getIdentityErr
	f.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f.Storage.GetIdentityByEmail(ctx, email)
}

func (f *FakeStorage) RotateCredentials(ctx context.Context, id, passwordHash string) error {
	f.mu.Lock()
	f.rotateCalls++
	err := f.rotateErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Storage.RotateCredentials(ctx, id, passwordHash)
}

func (f *FakeStorage) CreateSession(ctx context.Context, session *core.Session) error {
	f.mu.RLock()
	err := f.createSessionErr
	f.mu.RUnlock()
	if err != nil {
		return err
	}
	return f.Storage.CreateSession(ctx, session)
}

func (f *FakeStorage) GetSessionByHash(ctx context.Context, tokenHash string) (*core.Session, error) {
	f.mu.Lock()
	err := f.getSessionErr
	hook := f.afterGetSession
	f.afterGetSession = nil
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	session, err := f.Storage.GetSessionByHash(ctx, tokenHash)
	if hook != nil {
		hook()
	}
	return session, err
}

func (f *FakeStorage) TouchSession(ctx context.Context, id string, expiresAt time.Time) error {
	f.mu.Lock()
	f.touchSessionCalls++
	f.mu.Unlock()
	return f.Storage.TouchSession(ctx, id, expiresAt)
}

func (f *FakeStorage) GetTokenByID(ctx context.Context, id string) (*core.Token, error) {
	f.mu.Lock()
	f.getTokenCalls++
	f.mu.Unlock()
	return f.Storage.GetTokenByID(ctx, id)
}

func (f *FakeStorage) CreateToken(ctx context.Context, token *core.Token) error {
	f.mu.RLock()
	err := f.createTokenErr
	f.mu.RUnlock()
	if err != nil {
		return err
	}
	return f.Storage.CreateToken(ctx, token)
}

// Test helper methods
func (f *FakeStorage) SetCreateIdentityError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createIdentityErr = err
}

func (f *FakeStorage) SetGetIdentityError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getIdentityErr = err
}

// OnceAfterGetIdentity pauses the next GetIdentityByID caller in fn, after
// its read and before it returns.
func (f *FakeStorage) OnceAfterGetIdentity(fn func(id string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterGetIdentity = fn
}

func (f *FakeStorage) OnceAfterGetSession(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterGetSession = fn
}

func (f *FakeStorage) SetGetSessionError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getSessionErr = err
}

func (f *FakeStorage) SetCreateSessionError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createSessionErr = err
}

func (f *FakeStorage) SetCreateTokenError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createTokenErr = err
}

func (f *FakeStorage) SetRotateError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rotateErr = err
}

func (f *FakeStorage) TouchSessionCalls() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.touchSessionCalls
}

func (f *FakeStorage) GetTokenCalls() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.getTokenCalls
}

func (f *FakeStorage) RotateCalls() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rotateCalls
}

// FakeCache is a test-only fake implementing core.Cache.
// It stores sessions in a map and exposes error fields for behavior injection.
type FakeCache struct {
	cache  map[string]*core.Session
	mu     sync.RWMutex
	getErr error
	setErr error
	hits   int
	misses int
}

func NewFakeCache() *FakeCache {
	return &FakeCache{
		cache: make(map[string]*core.Session),
	}
}

func (f *FakeCache) Get(tokenHash string) (*core.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}

	s, ok := f.cache[tokenHash]
	if !ok {
		f.misses++
		return nil, core.ErrCacheNotFound
	}

	f.hits++
	c := *s
	return &c, nil
}

func (f *FakeCache) Set(tokenHash string, session *core.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.setErr != nil {
		return f.setErr
	}

	c := *session
	f.cache[tokenHash] = &c
	return nil
}

func (f *FakeCache) Delete(tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.cache, tokenHash)
	return nil
}

func (f *FakeCache) DeleteIdentity(identityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for k, s := range f.cache {
		if s.IdentityID == identityID {
			delete(f.cache, k)
		}
	}
	return nil
}

func (f *FakeCache) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cache = make(map[string]*core.Session)
	return nil
}

func (f *FakeCache) Stats() core.CacheStats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return core.CacheStats{
		Hits:   int64(f.hits),
		Misses: int64(f.misses),
		Size:   len(f.cache),
	}
}

func (f *FakeCache) SetGetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *FakeCache) SetSetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setErr = err
}

func (f *FakeCache) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}

// RecordingNotifier is a test-only core.Notifier that keeps every
// notification it is handed.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []core.Notification
	err  error
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (r *RecordingNotifier) Notify(_ context.Context, n core.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *RecordingNotifier) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Sent returns the notifications of kind, or all of them when kind is empty.
func (r *RecordingNotifier) Sent(kind core.NotificationKind) []core.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.Notification
	for _, n := range r.sent {
		if kind == "" || n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Last returns the most recent notification of kind.
func (r *RecordingNotifier) Last(kind core.NotificationKind) (core.Notification, bool) {
	sent := r.Sent(kind)
	if len(sent) == 0 {
		return core.Notification{}, false
	}
	return sent[len(sent)-1], true
}

var errFakeStorage = errors.New("storage unavailable")
