// Package memory provides process-local implementations of the bantay storage
// and rate-limit ports. They suit tests, examples and single-instance
// deployments; data is lost on restart.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lborres/bantay/core"
)

// Storage implements core.StorageAdapter with maps guarded by one RWMutex,
// which also makes RotateCredentials trivially atomic.
type Storage struct {
	mu         sync.RWMutex
	identities map[string]*core.Identity
	emails     map[string]string // normalized email -> identity ID
	sessions   map[string]*core.Session
	tokens     map[string]*core.Token
	resets     map[string]*core.ResetArtifact
}

var _ core.StorageAdapter = (*Storage)(nil)

func NewStorage() *Storage {
	return &Storage{
		identities: make(map[string]*core.Identity),
		emails:     make(map[string]string),
		sessions:   make(map[string]*core.Session),
		tokens:     make(map[string]*core.Token),
		resets:     make(map[string]*core.ResetArtifact),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ============================================
// IDENTITIES
// ============================================

func (s *Storage) CreateIdentity(_ context.Context, identity *core.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(identity.Email)
	if _, taken := s.emails[key]; taken {
		return core.ErrDuplicateEmail
	}

	s.identities[identity.ID] = cloneIdentity(identity)
	s.emails[key] = identity.ID
	return nil
}

func (s *Storage) GetIdentityByID(_ context.Context, id string) (*core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, core.ErrIdentityNotFound
	}
	return cloneIdentity(identity), nil
}

func (s *Storage) GetIdentityByEmail(_ context.Context, email string) (*core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[emailKey(email)]
	if !ok {
		return nil, core.ErrIdentityNotFound
	}
	return cloneIdentity(s.identities[id]), nil
}

func (s *Storage) UpdateProfile(_ context.Context, identity *core.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.identities[identity.ID]
	if !ok {
		return core.ErrIdentityNotFound
	}
	current.Name = identity.Name
	current.Phone = identity.Phone
	current.Address = identity.Address
	current.Locale = identity.Locale
	current.UpdatedAt = identity.UpdatedAt
	return nil
}

func (s *Storage) ReplacePasswordHash(_ context.Context, id, oldHash, newHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[id]
	if !ok {
		return false, core.ErrIdentityNotFound
	}
	if identity.PasswordHash != oldHash {
		return false, nil
	}
	identity.PasswordHash = newHash
	identity.UpdatedAt = at
	return true, nil
}

func (s *Storage) DisableIdentity(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[id]
	if !ok {
		return false, core.ErrIdentityNotFound
	}
	if identity.DisabledAt != nil {
		return false, nil
	}
	identity.DisabledAt = &at
	identity.UpdatedAt = at
	return true, nil
}

func (s *Storage) MarkVerified(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[id]
	if !ok {
		return false, core.ErrIdentityNotFound
	}
	if identity.VerifiedAt != nil {
		return false, nil
	}
	identity.VerifiedAt = &at
	identity.UpdatedAt = at
	return true, nil
}

func (s *Storage) RotateCredentials(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[id]
	if !ok {
		return core.ErrIdentityNotFound
	}
	identity.PasswordHash = passwordHash
	identity.UpdatedAt = time.Now()

	for hash, session := range s.sessions {
		if session.IdentityID == id {
			delete(s.sessions, hash)
		}
	}
	for tokenID, token := range s.tokens {
		if token.IdentityID == id {
			delete(s.tokens, tokenID)
		}
	}
	return nil
}

// ============================================
// SESSIONS
// ============================================

func (s *Storage) CreateSession(_ context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.TokenHash] = cloneSession(session)
	return nil
}

func (s *Storage) GetSessionByHash(_ context.Context, tokenHash string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[tokenHash]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *Storage) TouchSession(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range s.sessions {
		if session.ID == id {
			session.ExpiresAt = expiresAt
			session.UpdatedAt = time.Now()
			return nil
		}
	}
	return core.ErrSessionNotFound
}

func (s *Storage) DeleteSessionByHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, tokenHash)
	return nil
}

func (s *Storage) DeleteIdentitySessions(_ context.Context, identityID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for hash, session := range s.sessions {
		if session.IdentityID == identityID {
			delete(s.sessions, hash)
			count++
		}
	}
	return count, nil
}

func (s *Storage) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for hash, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, hash)
			count++
		}
	}
	return count, nil
}

// ============================================
// TOKENS
// ============================================

func (s *Storage) CreateToken(_ context.Context, token *core.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token.ID] = cloneToken(token)
	return nil
}

func (s *Storage) GetTokenByID(_ context.Context, id string) (*core.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[id]
	if !ok {
		return nil, core.ErrTokenNotFound
	}
	return cloneToken(token), nil
}

func (s *Storage) ListIdentityTokens(_ context.Context, identityID string) ([]*core.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]*core.Token, 0)
	for _, token := range s.tokens {
		if token.IdentityID == identityID {
			tokens = append(tokens, cloneToken(token))
		}
	}
	slices.SortFunc(tokens, func(a, b *core.Token) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return tokens, nil
}

func (s *Storage) TouchToken(_ context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok {
		return core.ErrTokenNotFound
	}
	token.LastUsedAt = &usedAt
	return nil
}

func (s *Storage) RevokeToken(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok {
		return core.ErrTokenNotFound
	}
	if token.RevokedAt == nil {
		token.RevokedAt = &at
	}
	return nil
}

func (s *Storage) RevokeIdentityTokens(_ context.Context, identityID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, token := range s.tokens {
		if token.IdentityID == identityID && token.RevokedAt == nil {
			revokedAt := at
			token.RevokedAt = &revokedAt
			count++
		}
	}
	return count, nil
}

func (s *Storage) DeleteExpiredTokens(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, token := range s.tokens {
		if token.Expired(now) || token.Revoked() {
			delete(s.tokens, id)
			count++
		}
	}
	return count, nil
}

// ============================================
// RESET ARTIFACTS
// ============================================

func (s *Storage) ReplaceResetArtifact(_ context.Context, artifact *core.ResetArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, existing := range s.resets {
		if existing.IdentityID == artifact.IdentityID {
			delete(s.resets, hash)
		}
	}
	a := *artifact
	s.resets[artifact.TokenHash] = &a
	return nil
}

func (s *Storage) ConsumeResetArtifact(_ context.Context, tokenHash string, now time.Time) (*core.ResetArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	artifact, ok := s.resets[tokenHash]
	if !ok || artifact.UsedAt != nil || !now.Before(artifact.ExpiresAt) {
		return nil, core.ErrExpiredOrUsedArtifact
	}
	usedAt := now
	artifact.UsedAt = &usedAt

	a := *artifact
	return &a, nil
}

func (s *Storage) DeleteExpiredResetArtifacts(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for hash, artifact := range s.resets {
		if artifact.UsedAt != nil || !now.Before(artifact.ExpiresAt) {
			delete(s.resets, hash)
			count++
		}
	}
	return count, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneIdentity(i *core.Identity) *core.Identity {
	c := *i
	c.VerifiedAt = cloneTime(i.VerifiedAt)
	c.DisabledAt = cloneTime(i.DisabledAt)
	return &c
}

func cloneSession(s *core.Session) *core.Session {
	c := *s
	return &c
}

func cloneToken(t *core.Token) *core.Token {
	c := *t
	c.Abilities = slices.Clone(t.Abilities)
	c.ExpiresAt = cloneTime(t.ExpiresAt)
	c.RevokedAt = cloneTime(t.RevokedAt)
	c.LastUsedAt = cloneTime(t.LastUsedAt)
	return &c
}
