package tokencodec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/authrotate/internal/apperrors"
	"github.com/nkiryanov/authrotate/internal/models"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	defaultSigningMethod = "HS256"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
}

// Codec config with sensible defaults
type Config struct {
	// Secrets to sign access and refresh tokens
	// Both required and must differ: leaked access secret must not allow to forge refresh tokens
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock. time.Now if not set
	Now func() time.Time
}

// Signs and verifies access and refresh tokens
// It is pure: nothing is stored
type Codec struct {
	alg jwt.SigningMethod

	access  key
	refresh key

	now func() time.Time
}

type key struct {
	secret []byte
	ttl    time.Duration
}

func New(cfg Config) (*Codec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("access and refresh secrets must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing method %q, HMAC expected", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, DefaultAccessTTL)
	setDefaultDuration(&cfg.RefreshTTL, DefaultRefreshTTL)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Codec{
		alg:     alg,
		access:  key{secret: []byte(cfg.AccessSecret), ttl: cfg.AccessTTL},
		refresh: key{secret: []byte(cfg.RefreshSecret), ttl: cfg.RefreshTTL},
		now:     cfg.Now,
	}, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.access.ttl }
func (c *Codec) RefreshTTL() time.Duration { return c.refresh.ttl }

// Now returns codec clock time truncated to JWT precision
func (c *Codec) Now() time.Time {
	return c.now().Truncate(time.Second)
}

func (c *Codec) IssueAccess(userID uuid.UUID) (models.IssuedToken, error) {
	return c.issue(c.access, userID)
}

func (c *Codec) IssueRefresh(userID uuid.UUID) (models.IssuedToken, error) {
	return c.issue(c.refresh, userID)
}

func (c *Codec) VerifyAccess(token string) (uuid.UUID, error) {
	return c.verify(c.access, token)
}

func (c *Codec) VerifyRefresh(token string) (uuid.UUID, error) {
	return c.verify(c.refresh, token)
}

func (c *Codec) issue(k key, userID uuid.UUID) (models.IssuedToken, error) {
	now := c.Now()
	expiresAt := now.Add(k.ttl)

	// jti makes every token unique even if issued in the same second
	token := jwt.NewWithClaims(c.alg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
	})

	signed, err := token.SignedString(k.secret)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Parse and validate token with the key
// Failure is one of apperrors.ErrTokenExpired, ErrTokenSignature or ErrTokenMalformed
func (c *Codec) verify(k key, token string) (uuid.UUID, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) { return k.secret, nil },
		jwt.WithValidMethods([]string{c.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	switch {
	case err == nil && claims.UserID != uuid.Nil:
		return claims.UserID, nil
	case err == nil:
		return uuid.Nil, fmt.Errorf("token has no user. Err: %w", apperrors.ErrTokenMalformed)
	case errors.Is(err, jwt.ErrTokenExpired):
		return uuid.Nil, fmt.Errorf("%w: %w", apperrors.ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return uuid.Nil, fmt.Errorf("%w: %w", apperrors.ErrTokenSignature, err)
	default:
		return uuid.Nil, fmt.Errorf("%w: %w", apperrors.ErrTokenMalformed, err)
	}
}
