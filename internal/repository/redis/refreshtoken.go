package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/authrotate/internal/apperrors"
	"github.com/nkiryanov/authrotate/internal/models"
)

const DefaultPrefix = "rt"

// Refresh token store on redis
// One key per token, the key lives exactly until the token expires
type RefreshTokenRepo struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRefreshTokenRepo(client redis.UniversalClient, prefix string) *RefreshTokenRepo {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RefreshTokenRepo{client: client, prefix: prefix, now: time.Now}
}

// Stored value. Token itself is the key
type record struct {
	UserID    uuid.UUID `json:"uid"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r *RefreshTokenRepo) key(token string) string {
	return r.prefix + ":" + token
}

func (r *RefreshTokenRepo) Insert(ctx context.Context, token models.RefreshToken) error {
	ttl := token.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		// Already expired: redis would drop it at once, nothing to store
		return nil
	}

	data, err := json.Marshal(record{UserID: token.UserID, CreatedAt: token.CreatedAt, ExpiresAt: token.ExpiresAt})
	if err != nil {
		return fmt.Errorf("encode error: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(token.Token), data, ttl).Result()
	switch {
	case err != nil:
		return fmt.Errorf("redis error: %w", err)
	case !ok:
		return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenExists)
	default:
		return nil
	}
}

func (r *RefreshTokenRepo) FindByValue(ctx context.Context, token string) (models.RefreshToken, error) {
	data, err := r.client.Get(ctx, r.key(token)).Bytes()
	return decode(token, data, err)
}

// GETDEL is atomic: concurrent callers can't both get the value
func (r *RefreshTokenRepo) Consume(ctx context.Context, token string) (models.RefreshToken, error) {
	data, err := r.client.GetDel(ctx, r.key(token)).Bytes()
	return decode(token, data, err)
}

func (r *RefreshTokenRepo) DeleteByValue(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.key(token)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// Redis expires keys by itself
func (r *RefreshTokenRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func decode(token string, data []byte, err error) (models.RefreshToken, error) {
	switch {
	case errors.Is(err, redis.Nil):
		return models.RefreshToken{}, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	case err != nil:
		return models.RefreshToken{}, fmt.Errorf("redis error: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.RefreshToken{}, fmt.Errorf("decode error: %w", err)
	}

	return models.RefreshToken{
		Token:     token,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}
