package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/authrotate/internal/apperrors"
	"github.com/nkiryanov/authrotate/internal/handlers/render"
	"github.com/nkiryanov/authrotate/internal/logger"
	"github.com/nkiryanov/authrotate/internal/models"
)

type tokenResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
}

// Tokens go to header, cookie and body
func renderTokens(w http.ResponseWriter, s authService, pair models.TokenPair, message string) {
	s.SetTokenPairToResponse(w, pair)
	render.JSON(w, tokenResponse{Message: message, AccessToken: pair.Access.Value})
}

func handleRegister(s authService, l logger.Logger) http.Handler {
	type request struct {
		Login    string `json:"login" validate:"required,min=2,max=50,username"`
		Password string `json:"password" validate:"required,min=8,max=128"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := s.Register(r.Context(), data.Login, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "User already exists", http.StatusConflict)
			default:
				l.Error("Failed to register user", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		renderTokens(w, s, pair, "User registered successfully")
	})
}

func handleLogin(s authService, l logger.Logger) http.Handler {
	type request struct {
		Login    string `json:"login" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := s.Login(r.Context(), data.Login, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidCredentials):
				render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)
			default:
				l.Error("Failed to login user", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		renderTokens(w, s, pair, "User logged in successfully")
	})
}

func handleTokenRefresh(s authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := s.GetRefreshString(r)
		if err != nil {
			render.ServiceError(w, "Invalid refresh token", http.StatusUnauthorized)
			return
		}

		pair, err := s.Refresh(r.Context(), refresh)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidToken):
				render.ServiceError(w, "Invalid refresh token", http.StatusUnauthorized)
			default:
				l.Error("Failed to refresh tokens", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		renderTokens(w, s, pair, "Tokens refreshed successfully")
	})
}

// Logout always succeeds: missing or unknown token means client is already logged out
func handleLogout(s authService, l logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if refresh, err := s.GetRefreshString(r); err == nil {
			if err := s.Logout(r.Context(), refresh); err != nil {
				l.Warn("Logout failed", "error", err)
			}
		}

		s.ClearRefresh(w)
		render.JSON(w, response{Message: "User logged out successfully"})
	})
}
