package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lborres/bantay/core"
	"github.com/lborres/bantay/pkg/crypto"
	"github.com/lborres/bantay/pkg/logging"
)

// TokenIssuer creates and resolves opaque bearer tokens of the form
// "<id>|<secret>". Only the sha256 of the secret is stored.
type TokenIssuer struct {
	config  core.TokenConfig
	storage core.TokenStorage
	logger  logging.Logger
	now     func() time.Time

	// looked up and compared against when the presented value gives nothing
	// real to use, so every resolve costs one fetch, one hash and one
	// constant-time compare
	decoyID string
	decoy   string
}

func NewTokenIssuer(config core.TokenConfig, storage core.TokenStorage, logger logging.Logger) *TokenIssuer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &TokenIssuer{
		config:  config,
		storage: storage,
		logger:  logger,
		now:     time.Now,
		decoyID: strings.Repeat(".", crypto.IDSize),
		decoy:   crypto.HashToken("bantay-decoy-token"),
	}
}

// Issue stores a new token for identity and returns its plain-text value,
// which is never retrievable again.
func (ti *TokenIssuer) Issue(ctx context.Context, identity *core.Identity, name string, abilities []string) (*core.IssuedToken, error) {
	pair, err := crypto.GenerateHashedToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	tokenID, err := crypto.NewID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token id: %w", err)
	}

	if name == "" {
		name = ti.config.DefaultName
	}

	now := ti.now()
	token := &core.Token{
		ID:         tokenID,
		IdentityID: identity.ID,
		Name:       name,
		TokenHash:  pair.Hash,
		Abilities:  slices.Clone(abilities),
		CreatedAt:  now,
	}
	if token.Abilities == nil {
		token.Abilities = []string{}
	}
	if ti.config.TTL > 0 {
		exp := now.Add(ti.config.TTL)
		token.ExpiresAt = &exp
	}

	if err := ti.storage.CreateToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	return &core.IssuedToken{
		Token:          token,
		PlainTextToken: crypto.JoinToken(tokenID, pair.Token),
	}, nil
}

// Resolve returns the live token behind raw. Every rejection is a bare
// core.ErrUnauthorized; the reason only reaches the log.
func (ti *TokenIssuer) Resolve(ctx context.Context, raw string) (*core.Token, error) {
	token, err := ti.lookup(ctx, raw)
	if err != nil {
		return nil, err
	}

	now := ti.now()
	if token.Revoked() {
		return nil, ti.reject(ctx, core.ErrTokenRevoked, token.ID)
	}
	if token.Expired(now) {
		return nil, ti.reject(ctx, core.ErrTokenExpired, token.ID)
	}

	if err := ti.storage.TouchToken(ctx, token.ID, now); err != nil {
		ti.logger.Warn(ctx, "failed to record token use", "token_id", token.ID, "error", err)
	} else {
		token.LastUsedAt = &now
	}

	return token, nil
}

// lookup performs split, fetch and constant-time compare on every path.
func (ti *TokenIssuer) lookup(ctx context.Context, raw string) (*core.Token, error) {
	id, secret, ok := crypto.SplitToken(raw)
	if !ok {
		// the decoy id is outside the id alphabet and never matches a row
		if _, err := ti.storage.GetTokenByID(ctx, ti.decoyID); err != nil && !errors.Is(err, core.ErrTokenNotFound) {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}
		crypto.VerifyToken(raw, ti.decoy)
		return nil, ti.reject(ctx, core.ErrTokenMalformed, "")
	}

	token, err := ti.storage.GetTokenByID(ctx, id)
	if err != nil {
		if !errors.Is(err, core.ErrTokenNotFound) {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}
		crypto.VerifyToken(secret, ti.decoy)
		return nil, ti.reject(ctx, core.ErrTokenNotFound, id)
	}

	if !crypto.VerifyToken(secret, token.TokenHash) {
		return nil, ti.reject(ctx, core.ErrTokenMalformed, id)
	}
	return token, nil
}

func (ti *TokenIssuer) reject(ctx context.Context, kind error, tokenID string) error {
	ti.logger.Warn(ctx, "bearer token rejected", "reason", kind.Error(), "token_id", tokenID)
	return core.ErrUnauthorized
}

// Revoke revokes the token behind raw. Unknown or invalid values are ignored.
func (ti *TokenIssuer) Revoke(ctx context.Context, raw string) error {
	token, err := ti.lookup(ctx, raw)
	if err != nil {
		if errors.Is(err, core.ErrUnauthorized) {
			return nil
		}
		return err
	}
	if token.Revoked() {
		return nil
	}
	if err := ti.storage.RevokeToken(ctx, token.ID, ti.now()); err != nil && !errors.Is(err, core.ErrTokenNotFound) {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// RevokeByID revokes one of identityID's tokens. Tokens owned by anyone else
// are reported as core.ErrTokenNotFound.
func (ti *TokenIssuer) RevokeByID(ctx context.Context, identityID, tokenID string) error {
	token, err := ti.storage.GetTokenByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, core.ErrTokenNotFound) {
			return core.ErrTokenNotFound
		}
		return fmt.Errorf("failed to get token: %w", err)
	}
	if token.IdentityID != identityID {
		return core.ErrTokenNotFound
	}
	if token.Revoked() {
		return nil
	}
	if err := ti.storage.RevokeToken(ctx, tokenID, ti.now()); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (ti *TokenIssuer) RevokeAll(ctx context.Context, identityID string) (int, error) {
	count, err := ti.storage.RevokeIdentityTokens(ctx, identityID, ti.now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke tokens: %w", err)
	}
	return count, nil
}

// List returns identityID's tokens that are neither revoked nor expired.
func (ti *TokenIssuer) List(ctx context.Context, identityID string) ([]*core.Token, error) {
	tokens, err := ti.storage.ListIdentityTokens(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	now := ti.now()
	live := make([]*core.Token, 0, len(tokens))
	for _, t := range tokens {
		if !t.Revoked() && !t.Expired(now) {
			live = append(live, t)
		}
	}
	return live, nil
}
