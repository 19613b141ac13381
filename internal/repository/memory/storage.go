package memory

import (
	"github.com/nkiryanov/authrotate/internal/repository"
)

// Storage keeps users and refresh tokens in process memory
type Storage struct {
	users  *UserRepo
	tokens *RefreshTokenRepo
}

func NewStorage() *Storage {
	return &Storage{
		users:  NewUserRepo(),
		tokens: NewRefreshTokenRepo(),
	}
}

func (s *Storage) User() repository.UserRepo {
	return s.users
}

func (s *Storage) Refresh() repository.RefreshTokenRepo {
	return s.tokens
}

// Drop refresh tokens. Users are kept
func (s *Storage) Close() {
	s.tokens.Reset()
}
