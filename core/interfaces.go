package core

import (
	"context"
	"time"
)

// Ports define interfaces for external dependencies

// ============================================
// STORAGE PORTS (Database operations)
// ============================================

// IdentityStorage defines identity-related database operations
type IdentityStorage interface {
	// CreateIdentity must fail with ErrDuplicateEmail without writing anything
	// when the (normalized) email is already taken.
	CreateIdentity(ctx context.Context, identity *Identity) error
	GetIdentityByID(ctx context.Context, id string) (*Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*Identity, error)

	// UpdateProfile writes only name, phone, address, locale and updated_at.
	// Credentials and lifecycle fields are never touched by it.
	UpdateProfile(ctx context.Context, identity *Identity) error

	// ReplacePasswordHash swaps oldHash for newHash and reports whether the
	// stored hash still was oldHash.
	ReplacePasswordHash(ctx context.Context, id, oldHash, newHash string, at time.Time) (bool, error)

	// DisableIdentity sets disabled_at only when it is still unset and reports
	// whether this call changed it.
	DisableIdentity(ctx context.Context, id string, at time.Time) (bool, error)

	// MarkVerified sets verified_at only when it is still unset and reports
	// whether this call changed it.
	MarkVerified(ctx context.Context, id string, at time.Time) (bool, error)

	// RotateCredentials replaces the password hash and deletes every session
	// and token of the identity as one unit.
	RotateCredentials(ctx context.Context, id, passwordHash string) error
}

// SessionStorage defines session-related database operations
type SessionStorage interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByHash(ctx context.Context, tokenHash string) (*Session, error)
	TouchSession(ctx context.Context, id string, expiresAt time.Time) error
	DeleteSessionByHash(ctx context.Context, tokenHash string) error
	DeleteIdentitySessions(ctx context.Context, identityID string) (int, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// TokenStorage defines bearer-token database operations
type TokenStorage interface {
	CreateToken(ctx context.Context, token *Token) error
	GetTokenByID(ctx context.Context, id string) (*Token, error)
	ListIdentityTokens(ctx context.Context, identityID string) ([]*Token, error)
	TouchToken(ctx context.Context, id string, usedAt time.Time) error
	RevokeToken(ctx context.Context, id string, at time.Time) error
	RevokeIdentityTokens(ctx context.Context, identityID string, at time.Time) (int, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error)
}

// ResetArtifactStorage defines password-reset artifact operations
type ResetArtifactStorage interface {
	// ReplaceResetArtifact stores artifact and drops any older artifact of the
	// same identity.
	ReplaceResetArtifact(ctx context.Context, artifact *ResetArtifact) error

	// ConsumeResetArtifact atomically marks the artifact used. It fails with
	// ErrExpiredOrUsedArtifact when the artifact is unknown, expired or used.
	ConsumeResetArtifact(ctx context.Context, tokenHash string, now time.Time) (*ResetArtifact, error)
	DeleteExpiredResetArtifacts(ctx context.Context, now time.Time) (int, error)
}

type StorageAdapter interface {
	IdentityStorage
	SessionStorage
	TokenStorage
	ResetArtifactStorage
}

// ============================================
// RATE LIMIT PORT
// ============================================

// RateLimitStore keeps attempt buckets. Implementations must make Hit atomic
// per key.
type RateLimitStore interface {
	// Hit counts one attempt unless the bucket already holds limit attempts, in
	// which case it reports allowed=false and leaves the bucket untouched.
	Hit(ctx context.Context, key string, limit int, window time.Duration) (bucket RateLimitBucket, allowed bool, err error)

	// Increment counts one attempt unconditionally.
	Increment(ctx context.Context, key string, window time.Duration) (RateLimitBucket, error)

	// Peek returns the live bucket for key, or ok=false.
	Peek(ctx context.Context, key string) (bucket RateLimitBucket, ok bool, err error)

	Clear(ctx context.Context, key string) error
}

// ============================================
// CACHE PORT
// ============================================

// Cache defines session caching operations
type Cache interface {
	Get(tokenHash string) (*Session, error)
	Set(tokenHash string, session *Session) error
	Delete(tokenHash string) error
	DeleteIdentity(identityID string) error
	Clear() error
}

// CacheWithStats extends Cache with statistics tracking
type CacheWithStats interface {
	Cache
	Stats() CacheStats
}

// CacheConfig configures cache behavior
type CacheConfig struct {
	TTL     time.Duration
	MaxSize int
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Sets      int64         `json:"sets"`
	Deletes   int64         `json:"deletes"`
	Evictions int64         `json:"evictions"`
	Size      int           `json:"size"`
	TTL       time.Duration `json:"ttl"`
}

// ============================================
// NOTIFICATION PORT
// ============================================

type NotificationKind string

const (
	NotifyVerifyEmail     NotificationKind = "verify-email"
	NotifyPasswordReset   NotificationKind = "password-reset"
	NotifyPasswordChanged NotificationKind = "password-changed"
)

// Notification is a message for one identity. Payload carries template data
// such as the reset link.
type Notification struct {
	Kind     NotificationKind
	To       string
	Name     string
	Payload  map[string]string
	QueuedAt time.Time
}

// Notifier hands a notification off for delivery. Implementations must not
// block on delivery; at-least-once semantics are acceptable.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ============================================
// HTTP PORT
// ============================================

type HTTPAdapter interface {
	RegisterRoutes(handler AuthHandler, basePath string) error
}
