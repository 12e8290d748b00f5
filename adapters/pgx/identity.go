package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lborres/bantay/core"
)

const identityColumns = `id, email, password_hash, name, verified_at, role, phone, address, locale, provenance, disabled_at, created_at, updated_at`

func scanIdentity(row pgx.Row) (*core.Identity, error) {
	i := &core.Identity{}
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.Name, &i.VerifiedAt, &i.Role,
		&i.Phone, &i.Address, &i.Locale, &i.Provenance, &i.DisabledAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrIdentityNotFound
		}
		return nil, err
	}
	return i, nil
}

func (a *Adapter) CreateIdentity(ctx context.Context, identity *core.Identity) error {
	q := `INSERT INTO identities (` + identityColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := a.pool.Exec(ctx, q, identity.ID, identity.Email, identity.PasswordHash, identity.Name,
		identity.VerifiedAt, identity.Role, identity.Phone, identity.Address, identity.Locale,
		identity.Provenance, identity.DisabledAt, identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (a *Adapter) GetIdentityByID(ctx context.Context, id string) (*core.Identity, error) {
	q := `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`
	return scanIdentity(a.pool.QueryRow(ctx, q, id))
}

func (a *Adapter) GetIdentityByEmail(ctx context.Context, email string) (*core.Identity, error) {
	q := `SELECT ` + identityColumns + ` FROM identities WHERE lower(email) = lower($1)`
	return scanIdentity(a.pool.QueryRow(ctx, q, email))
}

func (a *Adapter) UpdateProfile(ctx context.Context, identity *core.Identity) error {
	q := `UPDATE identities SET name = $2, phone = $3, address = $4, locale = $5, updated_at = $6 WHERE id = $1`

	tag, err := a.pool.Exec(ctx, q, identity.ID, identity.Name, identity.Phone, identity.Address,
		identity.Locale, identity.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrIdentityNotFound
	}
	return nil
}

func (a *Adapter) ReplacePasswordHash(ctx context.Context, id, oldHash, newHash string, at time.Time) (bool, error) {
	tag, err := a.pool.Exec(ctx,
		`UPDATE identities SET password_hash = $3, updated_at = $4 WHERE id = $1 AND password_hash = $2`,
		id, oldHash, newHash, at)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, a.requireIdentity(ctx, id)
}

func (a *Adapter) DisableIdentity(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := a.pool.Exec(ctx,
		`UPDATE identities SET disabled_at = $2, updated_at = $2 WHERE id = $1 AND disabled_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, a.requireIdentity(ctx, id)
}

// requireIdentity tells "no row matched the condition" apart from "no such identity".
func (a *Adapter) requireIdentity(ctx context.Context, id string) error {
	var exists bool
	if err := a.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return core.ErrIdentityNotFound
	}
	return nil
}

func (a *Adapter) MarkVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := a.pool.Exec(ctx,
		`UPDATE identities SET verified_at = $2, updated_at = $2 WHERE id = $1 AND verified_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, a.requireIdentity(ctx, id)
}

// RotateCredentials swaps the hash and deletes every session and token in one
// transaction.
func (a *Adapter) RotateCredentials(ctx context.Context, id, passwordHash string) error {
	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE identities SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return core.ErrIdentityNotFound
		}
		if _, err := deleteIdentitySessions(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM tokens WHERE identity_id = $1`, id); err != nil {
			return fmt.Errorf("delete tokens: %w", err)
		}
		return nil
	})
}
