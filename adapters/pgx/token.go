package pgx

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lborres/bantay/core"
)

const tokenColumns = `id, identity_id, name, token_hash, abilities, expires_at, revoked_at, last_used_at, created_at`

func scanToken(row pgx.Row) (*core.Token, error) {
	t := &core.Token{}
	err := row.Scan(&t.ID, &t.IdentityID, &t.Name, &t.TokenHash, &t.Abilities,
		&t.ExpiresAt, &t.RevokedAt, &t.LastUsedAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if t.Abilities == nil {
		t.Abilities = []string{}
	}
	return t, nil
}

func (a *Adapter) CreateToken(ctx context.Context, token *core.Token) error {
	abilities := token.Abilities
	if abilities == nil {
		abilities = []string{}
	}
	q := `INSERT INTO tokens (` + tokenColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := a.pool.Exec(ctx, q, token.ID, token.IdentityID, token.Name, token.TokenHash, abilities,
		token.ExpiresAt, token.RevokedAt, token.LastUsedAt, token.CreatedAt)
	return err
}

func (a *Adapter) GetTokenByID(ctx context.Context, id string) (*core.Token, error) {
	t, err := scanToken(a.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrTokenNotFound
		}
		return nil, err
	}
	return t, nil
}

func (a *Adapter) ListIdentityTokens(ctx context.Context, identityID string) ([]*core.Token, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE identity_id = $1 ORDER BY created_at, id`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := make([]*core.Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (a *Adapter) TouchToken(ctx context.Context, id string, usedAt time.Time) error {
	tag, err := a.pool.Exec(ctx, `UPDATE tokens SET last_used_at = $2 WHERE id = $1`, id, usedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrTokenNotFound
	}
	return nil
}

// RevokeToken keeps the first revocation time.
func (a *Adapter) RevokeToken(ctx context.Context, id string, at time.Time) error {
	tag, err := a.pool.Exec(ctx, `UPDATE tokens SET revoked_at = coalesce(revoked_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrTokenNotFound
	}
	return nil
}

func (a *Adapter) RevokeIdentityTokens(ctx context.Context, identityID string, at time.Time) (int, error) {
	tag, err := a.pool.Exec(ctx,
		`UPDATE tokens SET revoked_at = $2 WHERE identity_id = $1 AND revoked_at IS NULL`, identityID, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (a *Adapter) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	tag, err := a.pool.Exec(ctx,
		`DELETE FROM tokens WHERE revoked_at IS NOT NULL OR (expires_at IS NOT NULL AND expires_at <= $1)`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
