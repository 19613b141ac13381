package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/authrotate/internal/apperrors"
	"github.com/nkiryanov/authrotate/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const insertToken = `-- name: InsertRefreshToken
INSERT INTO refresh_tokens (token, user_id, created_at, expires_at)
VALUES ($1, $2, $3, $4)
`

func (r *RefreshTokenRepo) Insert(ctx context.Context, token models.RefreshToken) error {
	_, err := r.DB.Exec(ctx, insertToken, token.Token, token.UserID, token.CreatedAt, token.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenExists)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const findToken = `-- name: FindRefreshToken
SELECT token, user_id, created_at, expires_at
FROM refresh_tokens
WHERE token = $1
`

// Return token even if it expired already
func (r *RefreshTokenRepo) FindByValue(ctx context.Context, token string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, findToken, token)
	return collectToken(rows)
}

const consumeToken = `-- name: ConsumeRefreshToken
DELETE FROM refresh_tokens
WHERE token = $1
RETURNING token, user_id, created_at, expires_at
`

// Delete token and return it
// Concurrent deletes of the same row are serialized by row lock: the second one deletes nothing
func (r *RefreshTokenRepo) Consume(ctx context.Context, token string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, consumeToken, token)
	return collectToken(rows)
}

const deleteToken = `-- name: DeleteRefreshToken
DELETE FROM refresh_tokens
WHERE token = $1
`

func (r *RefreshTokenRepo) DeleteByValue(ctx context.Context, token string) error {
	_, err := r.DB.Exec(ctx, deleteToken, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const deleteExpired = `-- name: DeleteExpiredRefreshTokens
DELETE FROM refresh_tokens
WHERE expires_at <= $1
`

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpired, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectToken(rows pgx.Rows) (models.RefreshToken, error) {
	token, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.RefreshToken, error) {
		var t models.RefreshToken
		err := row.Scan(&t.Token, &t.UserID, &t.CreatedAt, &t.ExpiresAt)
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
