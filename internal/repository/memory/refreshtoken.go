package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/nkiryanov/authrotate/internal/apperrors"
	"github.com/nkiryanov/authrotate/internal/models"
)

const defaultShards = 32

// Process local refresh token store. Lost on restart
//
// Tokens are kept in flat lists scanned linearly, fine for small deployments only.
// The lists are split in shards by token value hash, each shard has its own lock:
// operations on different tokens mostly do not wait for each other
type RefreshTokenRepo struct {
	shards []shard
}

type shard struct {
	mu     sync.Mutex
	tokens []models.RefreshToken
}

func NewRefreshTokenRepo() *RefreshTokenRepo {
	return NewRefreshTokenRepoWithShards(defaultShards)
}

func NewRefreshTokenRepoWithShards(n int) *RefreshTokenRepo {
	if n < 1 {
		n = 1
	}
	return &RefreshTokenRepo{shards: make([]shard, n)}
}

func (r *RefreshTokenRepo) shardFor(token string) *shard {
	return &r.shards[xxhash.Sum64String(token)%uint64(len(r.shards))]
}

// index of token in shard or -1. Caller must hold the shard lock
func (s *shard) index(token string) int {
	return slices.IndexFunc(s.tokens, func(t models.RefreshToken) bool {
		return t.Token == token
	})
}

func (r *RefreshTokenRepo) Insert(_ context.Context, token models.RefreshToken) error {
	s := r.shardFor(token.Token)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index(token.Token) >= 0 {
		return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenExists)
	}

	s.tokens = append(s.tokens, token)
	return nil
}

func (r *RefreshTokenRepo) FindByValue(_ context.Context, token string) (models.RefreshToken, error) {
	s := r.shardFor(token)
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(token)
	if i < 0 {
		return models.RefreshToken{}, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	}

	return s.tokens[i], nil
}

func (r *RefreshTokenRepo) Consume(_ context.Context, token string) (models.RefreshToken, error) {
	s := r.shardFor(token)
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(token)
	if i < 0 {
		return models.RefreshToken{}, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	}

	found := s.tokens[i]
	s.tokens = slices.Delete(s.tokens, i, i+1)
	return found, nil
}

func (r *RefreshTokenRepo) DeleteByValue(_ context.Context, token string) error {
	s := r.shardFor(token)
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.index(token); i >= 0 {
		s.tokens = slices.Delete(s.tokens, i, i+1)
	}
	return nil
}

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64

	for i := range r.shards {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		s := &r.shards[i]
		s.mu.Lock()
		before := len(s.tokens)
		s.tokens = slices.DeleteFunc(s.tokens, func(t models.RefreshToken) bool {
			return t.Expired(now)
		})
		deleted += int64(before - len(s.tokens))
		s.mu.Unlock()
	}

	return deleted, nil
}

// Len returns number of stored tokens
func (r *RefreshTokenRepo) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.tokens)
		s.mu.Unlock()
	}
	return n
}

// Reset drops every token. Used on shutdown and between tests
func (r *RefreshTokenRepo) Reset() {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		s.tokens = nil
		s.mu.Unlock()
	}
}
