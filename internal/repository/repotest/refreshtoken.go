// Package repotest holds behaviour checks every repository backend has to pass
package repotest

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authrotate/internal/apperrors"
	"github.com/nkiryanov/authrotate/internal/models"
	"github.com/nkiryanov/authrotate/internal/repository"
)

// Number of goroutines racing for one token
const racers = 16

// Token with unique value, so tests may share one backend without cleanup
func NewToken(ttl time.Duration) models.RefreshToken {
	now := time.Now().UTC().Truncate(time.Second)
	return models.RefreshToken{
		Token:     "rt-" + uuid.NewString(),
		UserID:    uuid.New(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// RefreshTokenRepo runs the refresh token store contract against repo returned by newRepo
// newRepo is called for every subtest; it may return the same shared backend
func RefreshTokenRepo(t *testing.T, newRepo func(t *testing.T) repository.RefreshTokenRepo) {
	t.Run("insert and find", func(t *testing.T) {
		repo := newRepo(t)
		token := NewToken(time.Hour)

		err := repo.Insert(t.Context(), token)
		require.NoError(t, err)

		got, err := repo.FindByValue(t.Context(), token.Token)

		require.NoError(t, err)
		assert.Equal(t, token.Token, got.Token)
		assert.Equal(t, token.UserID, got.UserID)
		assert.WithinDuration(t, token.CreatedAt, got.CreatedAt, 0)
		assert.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, 0)
	})

	t.Run("insert duplicate fails", func(t *testing.T) {
		repo := newRepo(t)
		token := NewToken(time.Hour)
		require.NoError(t, repo.Insert(t.Context(), token))

		err := repo.Insert(t.Context(), token)

		require.Error(t, err)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenExists)
	})

	t.Run("find not existed", func(t *testing.T) {
		repo := newRepo(t)

		_, err := repo.FindByValue(t.Context(), "never-issued")

		require.Error(t, err)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
	})

	t.Run("consume once", func(t *testing.T) {
		repo := newRepo(t)
		token := NewToken(time.Hour)
		require.NoError(t, repo.Insert(t.Context(), token))

		got, err := repo.Consume(t.Context(), token.Token)
		require.NoError(t, err, "first consume must return the token")
		assert.Equal(t, token.UserID, got.UserID)

		_, err = repo.Consume(t.Context(), token.Token)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound, "second consume must find nothing")

		_, err = repo.FindByValue(t.Context(), token.Token)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound, "consumed token must be gone")
	})

	t.Run("consume concurrently has one winner", func(t *testing.T) {
		repo := newRepo(t)
		token := NewToken(time.Hour)
		require.NoError(t, repo.Insert(t.Context(), token))

		var wg sync.WaitGroup
		results := make(chan error, racers)
		start := make(chan struct{})

		for range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := repo.Consume(t.Context(), token.Token)
				results <- err
			}()
		}
		close(start)
		wg.Wait()
		close(results)

		won := 0
		for err := range results {
			switch {
			case err == nil:
				won++
			default:
				require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
			}
		}
		require.Equal(t, 1, won, "exactly one consumer must get the token")
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		repo := newRepo(t)
		token := NewToken(time.Hour)
		require.NoError(t, repo.Insert(t.Context(), token))

		require.NoError(t, repo.DeleteByValue(t.Context(), token.Token))
		require.NoError(t, repo.DeleteByValue(t.Context(), token.Token), "deleting absent token is ok")
		require.NoError(t, repo.DeleteByValue(t.Context(), "never-issued"), "deleting never issued token is ok")

		_, err := repo.FindByValue(t.Context(), token.Token)
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
	})

	t.Run("delete keeps other tokens", func(t *testing.T) {
		repo := newRepo(t)
		first, second := NewToken(time.Hour), NewToken(time.Hour)
		require.NoError(t, repo.Insert(t.Context(), first))
		require.NoError(t, repo.Insert(t.Context(), second))

		require.NoError(t, repo.DeleteByValue(t.Context(), first.Token))

		_, err := repo.FindByValue(t.Context(), second.Token)
		require.NoError(t, err, "other token must survive")
	})
}

// Expired tokens are removed by DeleteExpired; live ones stay
// Backends with native expiry skip it, their DeleteExpired is no-op
func RefreshTokenRepoSweep(t *testing.T, repo repository.RefreshTokenRepo) {
	expired := NewToken(time.Hour)
	expired.CreatedAt = expired.CreatedAt.Add(-2 * time.Hour)
	expired.ExpiresAt = expired.ExpiresAt.Add(-2 * time.Hour)
	live := NewToken(time.Hour)

	require.NoError(t, repo.Insert(t.Context(), expired))
	require.NoError(t, repo.Insert(t.Context(), live))

	deleted, err := repo.DeleteExpired(t.Context(), time.Now())

	require.NoError(t, err)
	require.GreaterOrEqual(t, deleted, int64(1), "at least our expired token must be deleted")

	_, err = repo.FindByValue(t.Context(), expired.Token)
	require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound, "expired token must be swept")

	_, err = repo.FindByValue(t.Context(), live.Token)
	require.NoError(t, err, "live token must stay")
}
