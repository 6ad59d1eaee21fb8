package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/finxlab/finx/internal/apperrors"
	"github.com/finxlab/finx/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const saveToken = `-- name: Save refresh token
INSERT INTO refresh_tokens (id, user_id, token, created_at, expires_at, revoked_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) error {
	rows, _ := r.DB.Query(ctx, saveToken, token.ID, token.UserID, token.Token, token.CreatedAt, token.ExpiresAt, token.RevokedAt)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const getToken = `-- name: Get token by the string itself
SELECT id, user_id, created_at, expires_at, revoked_at
FROM refresh_tokens
WHERE token = $1
`

// Get token
// It should return result even if it expired or revoked already
func (r *RefreshTokenRepo) Get(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, tokenString)
	token, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		var t = models.RefreshToken{Token: tokenString}
		err := row.Scan(&t.ID, &t.UserID, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt)
		return t, err
	})

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const markTokenRevoked = `-- name: Mark token revoked if it still active
UPDATE refresh_tokens
SET revoked_at = $2
WHERE token = $1 AND revoked_at IS NULL
RETURNING revoked_at
`

// Mark token as revoked
// Single atomic check-and-set: the update matches only active tokens, so of
// two concurrent revocations exactly one gets the row back. The loser does a
// second lookup to tell a missing token from an already revoked one.
func (r *RefreshTokenRepo) MarkRevoked(ctx context.Context, tokenString string) (time.Time, error) {
	rows, _ := r.DB.Query(ctx, markTokenRevoked, tokenString, time.Now())
	revokedAt, err := pgx.CollectOneRow(rows, pgx.RowTo[time.Time])

	switch {
	case err == nil:
		return revokedAt, nil
	case errors.Is(err, pgx.ErrNoRows):
		token, getErr := r.Get(ctx, tokenString)
		if getErr != nil {
			return time.Time{}, getErr
		}
		if token.RevokedAt != nil {
			revokedAt = *token.RevokedAt
		}
		return revokedAt, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
	default:
		return revokedAt, fmt.Errorf("db error: %w", err)
	}
}

const markAllRevoked = `-- name: Mark every active token of the user revoked
UPDATE refresh_tokens
SET revoked_at = $2
WHERE user_id = $1 AND revoked_at IS NULL
`

func (r *RefreshTokenRepo) MarkAllRevoked(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.DB.Exec(ctx, markAllRevoked, userID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

const deleteExpiredOrRevoked = `-- name: Delete terminal tokens
DELETE FROM refresh_tokens
WHERE expires_at < $1 OR revoked_at IS NOT NULL
`

func (r *RefreshTokenRepo) DeleteExpiredOrRevoked(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredOrRevoked, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}
