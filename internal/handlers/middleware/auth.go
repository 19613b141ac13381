package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkiryanov/authrotate/internal/apperrors"
	"github.com/nkiryanov/authrotate/internal/handlers/render"
	"github.com/nkiryanov/authrotate/internal/handlers/userctx"
	"github.com/nkiryanov/authrotate/internal/models"
)

type authService interface {
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}

// Put authenticated user to request context or respond with 401
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := as.GetUserFromRequest(r.Context(), r)
			switch {
			case errors.Is(err, apperrors.ErrBackendUnavailable):
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			case err != nil:
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
