package user

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authrotate/internal/apperrors"
	"github.com/nkiryanov/authrotate/internal/repository/memory"
	"github.com/nkiryanov/authrotate/internal/repository/postgres"
	"github.com/nkiryanov/authrotate/internal/testutil"
)

// Cheap hasher so tests don't spend time in bcrypt
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Compare(hashedPassword string, password string) error {
	if hashedPassword != "hashed:"+password {
		return apperrors.ErrInvalidCredentials
	}
	return nil
}

func TestUser(t *testing.T) {
	t.Parallel()

	t.Run("memory", func(t *testing.T) {
		testUserService(t, func(t *testing.T, fn func(s *UserService)) {
			fn(NewService(plainHasher{}, memory.NewUserRepo()))
		})
	})

	t.Run("postgres", func(t *testing.T) {
		pg := testutil.StartPostgresContainer(t)
		t.Cleanup(pg.Terminate)

		testUserService(t, func(t *testing.T, fn func(s *UserService)) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				fn(NewService(DefaultHasher, &postgres.UserRepo{DB: tx}))
			})
		})
	})
}

func testUserService(t *testing.T, withService func(t *testing.T, fn func(s *UserService))) {
	t.Run("CreateUser", func(t *testing.T) {
		t.Run("create ok", func(t *testing.T) {
			withService(t, func(s *UserService) {
				user, err := s.CreateUser(t.Context(), "test-user", "password123")

				require.NoError(t, err, "creating new user should be ok")
				require.NotEmpty(t, user.ID, "user ID should not be empty")
				require.Equal(t, "test-user", user.Username, "username should match")
				require.NotEmpty(t, user.HashedPassword, "password hash should not be empty")
				require.NotEqual(t, "password123", user.HashedPassword, "password should be hashed")
				require.NotZero(t, user.CreatedAt, "created at should be set")
			})
		})

		t.Run("empty password fail", func(t *testing.T) {
			withService(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), "test-user", "")

				require.Error(t, err, "creating user with empty password should fail")
			})
		})

		t.Run("create duplicate user fail", func(t *testing.T) {
			withService(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), "test-user", "password123")
				require.NoError(t, err, "first user creation should succeed")

				_, err = s.CreateUser(t.Context(), "test-user", "different_password")

				require.Error(t, err, "creating duplicate user should fail")
				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("Authenticate", func(t *testing.T) {
		t.Run("authenticate ok", func(t *testing.T) {
			withService(t, func(s *UserService) {
				createdUser, err := s.CreateUser(t.Context(), "test-user", "password123")
				require.NoError(t, err)

				user, err := s.Authenticate(t.Context(), "test-user", "password123")

				require.NoError(t, err, "login with correct credentials should succeed")
				require.Equal(t, createdUser.ID, user.ID, "user ID should match")
				require.Equal(t, createdUser.Username, user.Username, "username should match")
			})
		})

		t.Run("invalid password fail", func(t *testing.T) {
			withService(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), "test-user", "password123")
				require.NoError(t, err)

				user, err := s.Authenticate(t.Context(), "test-user", "wrong-password")

				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
				require.Equal(t, uuid.Nil, user.ID, "no user has to be returned")
			})
		})

		t.Run("not existed user fail", func(t *testing.T) {
			withService(t, func(s *UserService) {
				_, err := s.Authenticate(t.Context(), "non-existed-user", "password123")

				require.ErrorIs(t, err, apperrors.ErrInvalidCredentials, "must be the same error as for wrong password")
				require.NotErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})

	t.Run("GetUserByID", func(t *testing.T) {
		t.Run("existed ok", func(t *testing.T) {
			withService(t, func(s *UserService) {
				createdUser, err := s.CreateUser(t.Context(), "test-user", "password123")
				require.NoError(t, err)

				user, err := s.GetUserByID(t.Context(), createdUser.ID)

				require.NoError(t, err, "getting existing user by ID should succeed")
				require.Equal(t, createdUser.ID, user.ID, "user ID should match")
				require.Equal(t, createdUser.Username, user.Username, "username should match")
				require.Equal(t, createdUser.HashedPassword, user.HashedPassword, "password hash should match")
			})
		})

		t.Run("not existed fail", func(t *testing.T) {
			withService(t, func(s *UserService) {
				_, err := s.GetUserByID(t.Context(), uuid.New())

				require.Error(t, err, "getting non-existent user should fail")
				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})
}
