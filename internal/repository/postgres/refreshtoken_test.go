package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/authrotate/internal/repository"
	"github.com/nkiryanov/authrotate/internal/repository/repotest"
	"github.com/nkiryanov/authrotate/internal/testutil"
)

func Test_RefreshTokenRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Pool, not transaction: the contract races goroutines on one token
	// Tokens are unique per subtest so there is nothing to clean
	repotest.RefreshTokenRepo(t, func(t *testing.T) repository.RefreshTokenRepo {
		return &RefreshTokenRepo{DB: pg.Pool}
	})

	t.Run("delete expired", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repotest.RefreshTokenRepoSweep(t, &RefreshTokenRepo{DB: tx})
		})
	})

	t.Run("find returns expired token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := RefreshTokenRepo{DB: tx}
			token := repotest.NewToken(-time.Minute)
			require.NoError(t, repo.Insert(t.Context(), token))

			got, err := repo.FindByValue(t.Context(), token.Token)

			require.NoError(t, err, "store keeps expired token until swept, validity is decided by caller")
			require.True(t, got.Expired(time.Now()))
		})
	})
}
