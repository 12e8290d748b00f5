package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/crypto"
	"github.com/lborres/bantay/pkg/logging"
)

// SessionMeta is the client information recorded on a new session.
type SessionMeta struct {
	IPAddress string
	UserAgent string
}

// SessionIssuer creates and resolves cookie sessions for trusted origins.
type SessionIssuer struct {
	config  core.SessionConfig
	origins core.OriginPolicy
	storage core.SessionStorage
	cache   core.Cache // optional, can be nil if caching is disabled
	logger  logging.Logger
	now     func() time.Time

	// evictMu orders cache fills against evictions. evictions counts every
	// eviction so a fill can tell its storage read went stale.
	evictMu   sync.Mutex
	evictions uint64
}

func NewSessionIssuer(config core.SessionConfig, origins core.OriginPolicy, storage core.SessionStorage, cache core.Cache, logger logging.Logger) *SessionIssuer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SessionIssuer{
		config:  config,
		origins: origins,
		storage: storage,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

func (si *SessionIssuer) Config() core.SessionConfig {
	return si.config
}

// Issue creates a session for identity. Only trusted stateful origins get one.
func (si *SessionIssuer) Issue(ctx context.Context, identity *core.Identity, origin string, meta SessionMeta) (*core.IssuedSession, error) {
	if !si.origins.Trusted(origin) {
		return nil, core.ErrUntrustedOrigin
	}

	pair, err := crypto.GenerateHashedToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session handle: %w", err)
	}
	sessionID, err := crypto.NewID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := si.now()
	session := &core.Session{
		ID:         sessionID,
		IdentityID: identity.ID,
		TokenHash:  pair.Hash,
		Origin:     core.NormalizeOrigin(origin),
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  si.expiry(now, now),
	}

	if err := si.storage.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	if si.cache != nil {
		// We don't fail the request if caching fails
		_ = si.cache.Set(pair.Hash, session)
	}

	return &core.IssuedSession{Session: session, Handle: pair.Token}, nil
}

// expiry is the idle deadline from now, capped by the absolute lifetime.
func (si *SessionIssuer) expiry(createdAt, now time.Time) time.Time {
	idle := now.Add(si.config.IdleTimeout)
	hard := createdAt.Add(si.config.MaxLifetime)
	if hard.Before(idle) {
		return hard
	}
	return idle
}

// Resolve looks up the session behind handle and slides its idle expiry.
func (si *SessionIssuer) Resolve(ctx context.Context, handle string) (*core.Session, error) {
	if handle == "" {
		return nil, core.ErrSessionInvalid
	}

	tokenHash := crypto.HashToken(handle)
	now := si.now()
	epoch := si.epoch()

	var session *core.Session
	cached := false
	if si.cache != nil {
		if s, err := si.cache.Get(tokenHash); err == nil {
			session, cached = s, true
		}
	}

	if session == nil {
		s, err := si.storage.GetSessionByHash(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, core.ErrSessionNotFound) {
				return nil, core.ErrSessionInvalid
			}
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
		session = s
	}

	// Constant-time confirmation of the lookup.
	if !crypto.VerifyToken(handle, session.TokenHash) {
		return nil, core.ErrSessionInvalid
	}

	if !now.Before(session.ExpiresAt) {
		si.drop(ctx, tokenHash)
		return nil, core.ErrSessionExpired
	}

	next := si.expiry(session.CreatedAt, now)
	if next.Sub(session.ExpiresAt) >= si.config.TouchInterval {
		if err := si.storage.TouchSession(ctx, session.ID, next); err != nil {
			if errors.Is(err, core.ErrSessionNotFound) {
				si.drop(ctx, tokenHash)
				return nil, core.ErrSessionInvalid
			}
			return nil, fmt.Errorf("failed to refresh session: %w", err)
		}
		session.ExpiresAt = next
		session.UpdatedAt = now
		cached = false
	}

	if !cached {
		si.fill(tokenHash, session, epoch)
	}

	return session, nil
}

// Revoke deletes the session behind handle. Unknown handles are not an error.
func (si *SessionIssuer) Revoke(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}

	tokenHash := crypto.HashToken(handle)
	if err := si.storage.DeleteSessionByHash(ctx, tokenHash); err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	si.evict(func(c core.Cache) { _ = c.Delete(tokenHash) })
	return nil
}

// RevokeAll deletes every session of identityID.
func (si *SessionIssuer) RevokeAll(ctx context.Context, identityID string) (int, error) {
	count, err := si.storage.DeleteIdentitySessions(ctx, identityID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	si.Forget(identityID)
	return count, nil
}

// Forget evicts cached sessions of identityID after they were deleted
// elsewhere, e.g. by a credential rotation.
func (si *SessionIssuer) Forget(identityID string) {
	si.evict(func(c core.Cache) { _ = c.DeleteIdentity(identityID) })
}

func (si *SessionIssuer) drop(ctx context.Context, tokenHash string) {
	if err := si.storage.DeleteSessionByHash(ctx, tokenHash); err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		si.logger.Warn(ctx, "failed to delete expired session", "error", err)
	}
	si.evict(func(c core.Cache) { _ = c.Delete(tokenHash) })
}

func (si *SessionIssuer) epoch() uint64 {
	si.evictMu.Lock()
	defer si.evictMu.Unlock()
	return si.evictions
}

// fill caches a session read from storage unless an eviction ran since
// epoch, in which case the read may predate a revocation.
func (si *SessionIssuer) fill(tokenHash string, session *core.Session, epoch uint64) {
	if si.cache == nil {
		return
	}
	si.evictMu.Lock()
	defer si.evictMu.Unlock()
	if si.evictions != epoch {
		return
	}
	_ = si.cache.Set(tokenHash, session)
}

func (si *SessionIssuer) evict(fn func(core.Cache)) {
	if si.cache == nil {
		return
	}
	si.evictMu.Lock()
	defer si.evictMu.Unlock()
	si.evictions++
	fn(si.cache)
}
