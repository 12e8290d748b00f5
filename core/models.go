package core

import (
	"slices"
	"time"
)

type Role string

const (
	RoleStandard Role = "standard"
	RoleAdmin    Role = "admin"
)

// Provenance records how an identity came to exist.
type Provenance string

const (
	ProvenanceRegistration Provenance = "registration"
	ProvenanceAdmin        Provenance = "admin"
	ProvenanceSeed         Provenance = "seed"
)

// Identity represents one account
//
// This is the "who" - the password hash lives alongside it but is never serialized
type Identity struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never expose in JSON
	Name         string     `json:"name"`
	VerifiedAt   *time.Time `json:"verifiedAt,omitempty"`
	Role         Role       `json:"role"`
	Phone        string     `json:"phone,omitempty"`
	Address      string     `json:"address,omitempty"`
	Locale       string     `json:"locale,omitempty"`
	Provenance   Provenance `json:"provenance"`
	DisabledAt   *time.Time `json:"disabledAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (i *Identity) Verified() bool {
	return i.VerifiedAt != nil
}

func (i *Identity) Disabled() bool {
	return i.DisabledAt != nil
}

// Session is server-held state referenced by an opaque browser cookie
type Session struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identityId"`
	TokenHash  string    `json:"-"` // Never expose in JSON (security!)
	Origin     string    `json:"origin"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Token is a bearer credential presented per request by non-browser or
// cross-origin clients.
type Token struct {
	ID         string     `json:"id"`
	IdentityID string     `json:"identityId"`
	Name       string     `json:"name"`
	TokenHash  string     `json:"-"`
	Abilities  []string   `json:"abilities"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Can reports whether the token grants ability. An empty ability set grants everything.
func (t *Token) Can(ability string) bool {
	if len(t.Abilities) == 0 {
		return true
	}
	return slices.Contains(t.Abilities, ability) || slices.Contains(t.Abilities, "*")
}

func (t *Token) Revoked() bool {
	return t.RevokedAt != nil
}

func (t *Token) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// ResetArtifact is a single-use, time-bounded proof of the right to set a new password.
type ResetArtifact struct {
	ID         string
	IdentityID string
	TokenHash  string
	ExpiresAt  time.Time
	UsedAt     *time.Time
	CreatedAt  time.Time
}

// RateLimitBucket counts attempts for one key inside a fixed window that
// starts with the first attempt.
type RateLimitBucket struct {
	Key         string
	Attempts    int
	WindowStart time.Time
	Window      time.Duration
}

func (b *RateLimitBucket) ResetsAt() time.Time {
	return b.WindowStart.Add(b.Window)
}

func (b *RateLimitBucket) Elapsed(now time.Time) bool {
	return !now.Before(b.ResetsAt())
}

// Principal is the result of resolving an inbound credential: the identity
// plus whichever artifact proved it.
type Principal struct {
	Identity *Identity `json:"identity"`
	Session  *Session  `json:"session,omitempty"`
	Token    *Token    `json:"token,omitempty"`
}

// Can reports whether the principal may perform ability. Sessions carry full access.
func (p *Principal) Can(ability string) bool {
	if p.Token != nil {
		return p.Token.Can(ability)
	}
	return true
}
