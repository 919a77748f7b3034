package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/r3hensler/base-client-server/internal/model"
)

// ErrAlreadyConsumed is returned by RotateRefreshToken when the row was
// revoked between lookup and the conditional update. Exactly one of two
// concurrent rotations of the same token gets the row; the other gets this.
var ErrAlreadyConsumed = errors.New("refresh token already consumed")

const refreshColumns = `id, user_id, token_hash, expires_at, revoked_at, created_at`

func (db *Postgres) InsertRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if _, err := db.Pool.Exec(ctx, query, uuid.New(), userID, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetRefreshTokenByHash returns the row for a token hash regardless of state,
// so callers can tell "never issued" apart from "issued but already rotated or
// revoked" — the latter is the replay signal.
func (db *Postgres) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	query := `
		SELECT ` + refreshColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	var token model.RefreshToken
	err := db.Pool.QueryRow(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.RevokedAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select refresh token: %w", err)
	}
	return &token, nil
}

// RotateRefreshToken revokes the old row and inserts its replacement in one
// transaction. The revoke is conditional on the row still being live; if the
// affected-row count is zero the whole rotation aborts, so a lost race never
// mints a second valid token and a failed insert never strands the client
// with a half-revoked credential.
func (db *Postgres) RotateRefreshToken(ctx context.Context, oldTokenID, userID uuid.UUID, newTokenHash string, newExpiresAt time.Time) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`, oldTokenID)
	if err != nil {
		return fmt.Errorf("revoke old refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyConsumed
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, uuid.New(), userID, newTokenHash, newExpiresAt); err != nil {
		return fmt.Errorf("insert new refresh token: %w", err)
	}

	return tx.Commit(ctx)
}

// RevokeRefreshTokenByHash marks a live row revoked. Revoking an unknown or
// already-revoked token is a no-op, so logout never fails on stale cookies.
func (db *Postgres) RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`
	if _, err := db.Pool.Exec(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every live token for a user. Used by the replay
// escalation hook: reuse of a rotated token is treated as evidence of theft.
func (db *Postgres) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL
	`
	tag, err := db.Pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
