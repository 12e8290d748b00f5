package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/crypto"
	"github.com/lborres/bantay/pkg/logging"
)

const (
	maxEmailLength   = 254
	maxNameLength    = 255
	maxProfileLength = 255

	dummyPassword = "bantay-timing-equalizer"
)

var localePattern = regexp.MustCompile(`^[A-Za-z]{2,3}([_-][A-Za-z0-9]{2,8})*$`)

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CredentialStore owns identity records and their password hashes.
type CredentialStore struct {
	storage core.IdentityStorage
	hasher  crypto.PasswordHandler
	policy  core.Policy
	logger  logging.Logger
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewCredentialStore(storage core.IdentityStorage, hasher crypto.PasswordHandler, policy core.Policy, logger logging.Logger) *CredentialStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &CredentialStore{
		storage: storage,
		hasher:  hasher,
		policy:  policy.WithDefaults(),
		logger:  logger,
		now:     time.Now,
	}
}

func ValidateEmail(email string) error {
	if email == "" {
		return core.ErrEmailRequired
	}
	if len(email) > maxEmailLength {
		return core.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return core.ErrInvalidEmail
	}
	return nil
}

func (s *CredentialStore) ValidatePassword(password string) error {
	if password == "" {
		return core.ErrPasswordRequired
	}
	n := utf8.RuneCountInString(password)
	if n < s.policy.PasswordMinLength {
		return core.ErrPasswordTooShort
	}
	if n > s.policy.PasswordMaxLength {
		return core.ErrPasswordTooLong
	}
	return nil
}

func validateLocale(locale string) error {
	if locale != "" && !localePattern.MatchString(locale) {
		return core.ErrInvalidLocale
	}
	return nil
}

// CreateIdentity validates input, hashes the password and stores a new
// unverified identity. Duplicate emails fail with core.ErrDuplicateEmail.
func (s *CredentialStore) CreateIdentity(ctx context.Context, input core.RegisterInput) (*core.Identity, error) {
	email := NormalizeEmail(input.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := s.ValidatePassword(input.Password); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, core.ErrNameTooLong
	}
	if err := validateLocale(input.Locale); err != nil {
		return nil, err
	}
	role, err := core.ParseRole(string(input.Role))
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	provenance := input.Provenance
	if provenance == "" {
		provenance = core.ProvenanceRegistration
	}

	now := s.now()
	identity := &core.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		Phone:        truncate(strings.TrimSpace(input.Phone), maxProfileLength),
		Address:      truncate(strings.TrimSpace(input.Address), maxProfileLength),
		Locale:       input.Locale,
		Provenance:   provenance,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.CreateIdentity(ctx, identity); err != nil {
		if errors.Is(err, core.ErrDuplicateEmail) {
			return nil, core.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	return identity, nil
}

// VerifyPassword returns the identity owning email when plaintext matches.
// Unknown emails and disabled identities still pay for one hash comparison
// and fail exactly like a wrong password.
func (s *CredentialStore) VerifyPassword(ctx context.Context, email, plaintext string) (*core.Identity, error) {
	email = NormalizeEmail(email)

	identity, err := s.storage.GetIdentityByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, core.ErrIdentityNotFound) {
			return nil, fmt.Errorf("failed to find identity: %w", err)
		}
		_, _ = s.hasher.Verify(plaintext, s.dummy())
		s.logger.Warn(ctx, "login failed", "reason", "unknown email")
		return nil, core.ErrInvalidCredentials
	}

	if err := s.CheckPassword(ctx, identity, plaintext); err != nil {
		return nil, err
	}

	if identity.Disabled() {
		s.logger.Warn(ctx, "login failed", "reason", "identity disabled", "identity_id", identity.ID)
		return nil, core.ErrInvalidCredentials
	}

	return identity, nil
}

// CheckPassword verifies plaintext against identity's stored hash and
// upgrades the hash when it was made with outdated parameters.
func (s *CredentialStore) CheckPassword(ctx context.Context, identity *core.Identity, plaintext string) error {
	if identity.PasswordHash == "" {
		_, _ = s.hasher.Verify(plaintext, s.dummy())
		s.logger.Warn(ctx, "login failed", "reason", "no password set", "identity_id", identity.ID)
		return core.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(plaintext, identity.PasswordHash)
	if err != nil {
		s.logger.Error(ctx, "stored password hash unreadable", "identity_id", identity.ID, "error", err)
		return core.ErrInvalidCredentials
	}
	if !ok {
		s.logger.Warn(ctx, "login failed", "reason", "wrong password", "identity_id", identity.ID)
		return core.ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(identity.PasswordHash) {
		s.rehash(ctx, identity, plaintext)
	}
	return nil
}

func (s *CredentialStore) rehash(ctx context.Context, identity *core.Identity, plaintext string) {
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		s.logger.Error(ctx, "failed to rehash password", "identity_id", identity.ID, "error", err)
		return
	}
	now := s.now()
	// a reset that landed since the read wins over the upgraded hash
	swapped, err := s.storage.ReplacePasswordHash(ctx, identity.ID, identity.PasswordHash, hash, now)
	if err != nil {
		s.logger.Error(ctx, "failed to store rehashed password", "identity_id", identity.ID, "error", err)
		return
	}
	if !swapped {
		return
	}
	identity.PasswordHash = hash
	identity.UpdatedAt = now
	s.logger.Info(ctx, "password rehashed", "identity_id", identity.ID)
}

// UpdatePassword hashes newPlaintext with the current parameters and rotates
// the identity's credentials, which ends every session and token it holds.
func (s *CredentialStore) UpdatePassword(ctx context.Context, identity *core.Identity, newPlaintext string) error {
	if err := s.ValidatePassword(newPlaintext); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPlaintext)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.storage.RotateCredentials(ctx, identity.ID, hash); err != nil {
		return fmt.Errorf("failed to rotate credentials: %w", err)
	}
	identity.PasswordHash = hash
	return nil
}

// MarkVerified sets VerifiedAt once. Repeated calls keep the first timestamp.
func (s *CredentialStore) MarkVerified(ctx context.Context, identity *core.Identity) error {
	if identity.Verified() {
		return nil
	}

	now := s.now()
	changed, err := s.storage.MarkVerified(ctx, identity.ID, now)
	if err != nil {
		return fmt.Errorf("failed to mark identity verified: %w", err)
	}
	if changed {
		identity.VerifiedAt = &now
		return nil
	}

	fresh, err := s.storage.GetIdentityByID(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("failed to reload identity: %w", err)
	}
	identity.VerifiedAt = fresh.VerifiedAt
	return nil
}

func (s *CredentialStore) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error(context.Background(), "failed to build dummy hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
