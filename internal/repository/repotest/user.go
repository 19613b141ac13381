package repotest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authrotate/internal/apperrors"
	"github.com/nkiryanov/authrotate/internal/repository"
)

// UserRepo runs the user store contract. newRepo must return empty repo for every call
func UserRepo(t *testing.T, newRepo func(t *testing.T, fn func(r repository.UserRepo))) {
	t.Run("create user ok", func(t *testing.T) {
		newRepo(t, func(r repository.UserRepo) {
			user, err := r.CreateUser(t.Context(), "testuser", "hashedpassword123")

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, user.ID, "ID should be generated")
			assert.Equal(t, "testuser", user.Username)
			assert.Equal(t, "hashedpassword123", user.HashedPassword)
			assert.WithinDuration(t, time.Now(), user.CreatedAt, time.Second, "CreatedAt should be recent")
		})
	})

	t.Run("create duplicate username fails", func(t *testing.T) {
		newRepo(t, func(r repository.UserRepo) {
			_, err := r.CreateUser(t.Context(), "duplicate", "hashedpassword123")
			require.NoError(t, err)

			_, err = r.CreateUser(t.Context(), "duplicate", "other-hash")

			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})
	})

	t.Run("get user by id ok", func(t *testing.T) {
		newRepo(t, func(r repository.UserRepo) {
			created, err := r.CreateUser(t.Context(), "findbyid", "hashedpassword123")
			require.NoError(t, err)

			got, err := r.GetUserByID(t.Context(), created.ID)

			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
			assert.Equal(t, created.Username, got.Username)
			assert.Equal(t, created.HashedPassword, got.HashedPassword)
			assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, 0)
		})
	})

	t.Run("get user by id not found", func(t *testing.T) {
		newRepo(t, func(r repository.UserRepo) {
			_, err := r.GetUserByID(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrUserNotFound, "should return well known error")
		})
	})

	t.Run("get user by username ok", func(t *testing.T) {
		newRepo(t, func(r repository.UserRepo) {
			created, err := r.CreateUser(t.Context(), "findbyusername", "hashedpassword123")
			require.NoError(t, err)

			got, err := r.GetUserByUsername(t.Context(), "findbyusername")

			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
		})
	})

	t.Run("get user by username not found", func(t *testing.T) {
		newRepo(t, func(r repository.UserRepo) {
			_, err := r.GetUserByUsername(t.Context(), "nonexistentuser")

			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})
}
