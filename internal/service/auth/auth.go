package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authrotate/internal/apperrors"
	"github.com/nkiryanov/authrotate/internal/logger"
	"github.com/nkiryanov/authrotate/internal/models"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshtoken"

	// Max size of request body with refresh token
	maxRefreshBodySize = 8 << 10
)

type userService interface {
	CreateUser(ctx context.Context, username string, password string) (models.User, error)
	Authenticate(ctx context.Context, username string, password string) (models.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
}

type tokenRotator interface {
	Login(ctx context.Context, userID uuid.UUID) (models.TokenPair, error)
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)
	Logout(ctx context.Context, refresh string) error
	VerifyAccess(access string) (uuid.UUID, error)
}

type Config struct {
	// Header and its scheme to pass access token
	// Default is used if not set
	AccessHeaderName string
	AccessAuthScheme string

	// Cookie to keep refresh token
	// Default is used if not set
	RefreshCookieName string

	// Send refresh cookie over https only. Should be true in production
	SecureCookie bool
}

type AuthService struct {
	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
	secureCookie      bool

	users  userService
	tokens tokenRotator
	logger logger.Logger
}

func NewService(cfg Config, users userService, tokens tokenRotator, l logger.Logger) (*AuthService, error) {
	if users == nil || tokens == nil {
		return nil, errors.New("user service and token rotator must not be nil")
	}

	if cfg.AccessHeaderName == "" {
		cfg.AccessHeaderName = defaultAccessHeaderName
	}
	if cfg.AccessAuthScheme == "" {
		cfg.AccessAuthScheme = defaultAccessAuthScheme
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = defaultRefreshCookieName
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &AuthService{
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		secureCookie:      cfg.SecureCookie,
		users:             users,
		tokens:            tokens,
		logger:            l,
	}, nil
}

// Register user and open the first session
// Has to return apperrors.ErrUserAlreadyExists if username taken
func (s *AuthService) Register(ctx context.Context, username string, password string) (models.TokenPair, error) {
	user, err := s.users.CreateUser(ctx, username, password)
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.tokens.Login(ctx, user.ID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

// Login user with username and password
// Has to return apperrors.ErrInvalidCredentials if user not found or password is wrong
func (s *AuthService) Login(ctx context.Context, username string, password string) (models.TokenPair, error) {
	user, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return models.TokenPair{}, err
	}

	pair, err := s.tokens.Login(ctx, user.ID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return pair, nil
}

func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, error) {
	return s.tokens.Refresh(ctx, refresh)
}

func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	return s.tokens.Logout(ctx, refresh)
}

// Set access token header and refresh token cookie
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)

	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    pair.Refresh.Value,
		Path:     "/",
		MaxAge:   int(time.Until(pair.Refresh.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// Ask client to drop refresh cookie
func (s *AuthService) ClearRefresh(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// Get refresh token from cookie. If no cookie, from JSON body {"refresh_token": "..."}
// Return apperrors.ErrInvalidToken if there is no token
func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	if r.Body == nil {
		return "", apperrors.ErrInvalidToken
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	err = json.NewDecoder(io.LimitReader(r.Body, maxRefreshBodySize)).Decode(&body)
	if err != nil || body.RefreshToken == "" {
		return "", apperrors.ErrInvalidToken
	}

	return body.RefreshToken, nil
}

// Get request and return user if it authenticated
// Has to return apperrors.ErrUnauthenticated otherwise
func (s *AuthService) GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get(s.accessHeaderName)
	scheme, access, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, s.accessAuthScheme) || access == "" {
		return models.User{}, fmt.Errorf("no access token in request: %w", apperrors.ErrUnauthenticated)
	}

	userID, err := s.tokens.VerifyAccess(access)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.User{}, fmt.Errorf("token user not found: %w", apperrors.ErrUnauthenticated)
	case err != nil:
		s.logger.Error("Failed to get user by access token", "user_id", userID, "error", err)
		return models.User{}, fmt.Errorf("can't get user: %w", apperrors.ErrBackendUnavailable)
	}

	return user, nil
}
