package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authrotate/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string, hashedPassword string) (models.User, error)

	// Get user by it's id or username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

// RefreshToken repository interface
// Every implementation must be safe for concurrent use
type RefreshTokenRepo interface {
	// Save new token
	// If token with the same value exists has to return apperrors.ErrRefreshTokenExists
	Insert(ctx context.Context, token models.RefreshToken) error

	// Return the token if it stored
	// If not has to return apperrors.ErrRefreshTokenNotFound
	FindByValue(ctx context.Context, token string) (models.RefreshToken, error)

	// Delete the token and return what was deleted
	// Must be atomic: when called concurrently with the same value only one caller gets the token,
	// others get apperrors.ErrRefreshTokenNotFound
	Consume(ctx context.Context, token string) (models.RefreshToken, error)

	// Delete token if exists. Deleting absent token is not an error
	DeleteByValue(ctx context.Context, token string) error

	// Delete tokens expired at 'now' and return how many were deleted
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Storage groups repositories that share one backend
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
}
