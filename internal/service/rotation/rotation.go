// Package rotation manages refresh token lifecycle: issue on login, single-use rotation on refresh and revocation on logout.
//
// A refresh token is valid only while its record is in the store and its signature and expiry check out.
// Rotation relies on the store's atomic Consume: of concurrent refreshes with the same token only one wins.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authrotate/internal/apperrors"
	"github.com/nkiryanov/authrotate/internal/logger"
	"github.com/nkiryanov/authrotate/internal/models"
	"github.com/nkiryanov/authrotate/internal/repository"
)

const DefaultStoreTimeout = 3 * time.Second

type codec interface {
	IssueAccess(userID uuid.UUID) (models.IssuedToken, error)
	IssueRefresh(userID uuid.UUID) (models.IssuedToken, error)
	VerifyAccess(token string) (uuid.UUID, error)
	VerifyRefresh(token string) (uuid.UUID, error)
	Now() time.Time
}

type Config struct {
	// Max time for one store call. Default is used if not set
	StoreTimeout time.Duration
}

type Controller struct {
	codec        codec
	store        repository.RefreshTokenRepo
	logger       logger.Logger
	storeTimeout time.Duration
}

func New(cfg Config, codec codec, store repository.RefreshTokenRepo, l logger.Logger) (*Controller, error) {
	if codec == nil || store == nil {
		return nil, errors.New("codec and store must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}

	return &Controller{
		codec:        codec,
		store:        store,
		logger:       l.With("component", "rotation"),
		storeTimeout: cfg.StoreTimeout,
	}, nil
}

// Login issues new token pair for already authenticated user
// Existing sessions of the user are not touched
func (c *Controller) Login(ctx context.Context, userID uuid.UUID) (models.TokenPair, error) {
	return c.issuePair(ctx, userID)
}

// Refresh exchanges refresh token for a new pair. The presented token is invalid afterwards
// Any refresh failure is apperrors.ErrInvalidToken, so caller can't tell why the token was rejected
func (c *Controller) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	var pair models.TokenPair

	stored, err := c.find(ctx, refresh)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return pair, apperrors.ErrInvalidToken
	case err != nil:
		return pair, c.backendError("find refresh token", err)
	}

	userID, err := c.codec.VerifyRefresh(refresh)
	if err != nil {
		c.logger.Debug("Stored refresh token failed verification", "user_id", stored.UserID, "error", err)
		c.discard(ctx, refresh)
		return pair, apperrors.ErrInvalidToken
	}

	// Whoever consumes the record wins the rotation
	consumed, err := c.consume(ctx, refresh)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		c.logger.Debug("Refresh token consumed by concurrent call", "user_id", userID)
		return pair, apperrors.ErrInvalidToken
	case err != nil:
		return pair, c.backendError("consume refresh token", err)
	}

	if consumed.UserID != userID {
		c.logger.Warn("Refresh token record belongs to other user", "claims_user_id", userID, "record_user_id", consumed.UserID)
		return pair, apperrors.ErrInvalidToken
	}

	return c.issuePair(ctx, userID)
}

// Logout revokes refresh token. It never fails: absent token means already logged out
// Access tokens issued before stay valid until they expire
func (c *Controller) Logout(ctx context.Context, refresh string) error {
	c.discard(ctx, refresh)
	return nil
}

// VerifyAccess checks access token signature and expiry only. The store is not consulted
func (c *Controller) VerifyAccess(access string) (uuid.UUID, error) {
	userID, err := c.codec.VerifyAccess(access)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthenticated, err)
	}
	return userID, nil
}

func (c *Controller) issuePair(ctx context.Context, userID uuid.UUID) (models.TokenPair, error) {
	var pair models.TokenPair

	access, err := c.codec.IssueAccess(userID)
	if err != nil {
		return pair, fmt.Errorf("error while issuing access token. Err: %w", err)
	}

	// Every refresh token has random jti, so duplicate is close to impossible
	// Still it is handled: one more attempt with a fresh token
	var refresh models.IssuedToken
	for attempt := 0; attempt < 2; attempt++ {
		refresh, err = c.codec.IssueRefresh(userID)
		if err != nil {
			return pair, fmt.Errorf("error while issuing refresh token. Err: %w", err)
		}

		err = c.insert(ctx, models.RefreshToken{
			Token:     refresh.Value,
			UserID:    userID,
			CreatedAt: c.codec.Now(),
			ExpiresAt: refresh.ExpiresAt,
		})
		if !errors.Is(err, apperrors.ErrRefreshTokenExists) {
			break
		}
		c.logger.Warn("Duplicate refresh token issued", "user_id", userID, "attempt", attempt)
	}
	if err != nil {
		return pair, c.backendError("save refresh token", err)
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Best-effort delete: failure is logged and swallowed
func (c *Controller) discard(ctx context.Context, refresh string) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	if err := c.store.DeleteByValue(ctx, refresh); err != nil {
		c.logger.Error("Failed to delete refresh token", "error", err)
	}
}

func (c *Controller) find(ctx context.Context, refresh string) (models.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.FindByValue(ctx, refresh)
}

func (c *Controller) consume(ctx context.Context, refresh string) (models.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.Consume(ctx, refresh)
}

func (c *Controller) insert(ctx context.Context, token models.RefreshToken) error {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	return c.store.Insert(ctx, token)
}

// Log store failure and hide it behind generic error
func (c *Controller) backendError(op string, err error) error {
	c.logger.Error("Refresh token store failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, apperrors.ErrBackendUnavailable)
}
