package pgx

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lborres/bantay/core"
)

// ReplaceResetArtifact upserts on identity_id, so at most one artifact per
// identity is ever redeemable.
func (a *Adapter) ReplaceResetArtifact(ctx context.Context, artifact *core.ResetArtifact) error {
	q := `INSERT INTO password_resets (id, identity_id, token_hash, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, NULL, $5)
		ON CONFLICT (identity_id) DO UPDATE
		SET id = EXCLUDED.id, token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at,
			used_at = NULL, created_at = EXCLUDED.created_at`

	_, err := a.pool.Exec(ctx, q, artifact.ID, artifact.IdentityID, artifact.TokenHash, artifact.ExpiresAt, artifact.CreatedAt)
	return err
}

// ConsumeResetArtifact marks the artifact used in a single conditional
// UPDATE, so concurrent redemptions cannot both succeed.
func (a *Adapter) ConsumeResetArtifact(ctx context.Context, tokenHash string, now time.Time) (*core.ResetArtifact, error) {
	q := `UPDATE password_resets SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING id, identity_id, token_hash, expires_at, used_at, created_at`

	r := &core.ResetArtifact{}
	err := a.pool.QueryRow(ctx, q, tokenHash, now).Scan(&r.ID, &r.IdentityID, &r.TokenHash, &r.ExpiresAt, &r.UsedAt, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrExpiredOrUsedArtifact
		}
		return nil, err
	}
	return r, nil
}

func (a *Adapter) DeleteExpiredResetArtifacts(ctx context.Context, now time.Time) (int, error) {
	tag, err := a.pool.Exec(ctx, `DELETE FROM password_resets WHERE used_at IS NOT NULL OR expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
