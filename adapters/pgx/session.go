package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lborres/bantay/core"
)

func (a *Adapter) CreateSession(ctx context.Context, session *core.Session) error {
	q := `INSERT INTO sessions (id, identity_id, token_hash, origin, ip_address, user_agent, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := a.pool.Exec(ctx, q, session.ID, session.IdentityID, session.TokenHash, session.Origin,
		session.IPAddress, session.UserAgent, session.ExpiresAt, session.CreatedAt, session.UpdatedAt)
	return err
}

func (a *Adapter) GetSessionByHash(ctx context.Context, tokenHash string) (*core.Session, error) {
	q := `SELECT id, identity_id, token_hash, origin, ip_address, user_agent, expires_at, created_at, updated_at
		FROM sessions WHERE token_hash = $1`

	s := &core.Session{}
	err := a.pool.QueryRow(ctx, q, tokenHash).Scan(&s.ID, &s.IdentityID, &s.TokenHash, &s.Origin,
		&s.IPAddress, &s.UserAgent, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (a *Adapter) TouchSession(ctx context.Context, id string, expiresAt time.Time) error {
	tag, err := a.pool.Exec(ctx, `UPDATE sessions SET expires_at = $2, updated_at = now() WHERE id = $1`, id, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

func (a *Adapter) DeleteSessionByHash(ctx context.Context, tokenHash string) error {
	_, err := a.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return err
}

func (a *Adapter) DeleteIdentitySessions(ctx context.Context, identityID string) (int, error) {
	return deleteIdentitySessions(ctx, a.pool, identityID)
}

func deleteIdentitySessions(ctx context.Context, db dbtx, identityID string) (int, error) {
	tag, err := db.Exec(ctx, `DELETE FROM sessions WHERE identity_id = $1`, identityID)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (a *Adapter) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	tag, err := a.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
