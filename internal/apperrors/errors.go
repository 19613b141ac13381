package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Returned to callers of refresh for every refresh failure: not found, expired, tampered, already rotated
	ErrInvalidToken = errors.New("invalid refresh token")

	// Access token verification failed
	ErrUnauthenticated = errors.New("unauthenticated")

	// Store I/O failure. Details are logged, never returned to transport
	ErrBackendUnavailable = errors.New("backend unavailable")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExists   = errors.New("refresh token already exists")

	ErrTokenExpired   = errors.New("token is expired")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenSignature = errors.New("token signature is invalid")
)
