package middleware

import (
	"context"
	"net/http"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/observability"
	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

type ctxKey string

const sessionUserKey ctxKey = "session_user"

// WithUser returns a context carrying the session user
func WithUser(ctx context.Context, user *entities.SessionUser) context.Context {
	return context.WithValue(ctx, sessionUserKey, user)
}

// UserFromContext returns the session user, or nil for anonymous requests
func UserFromContext(ctx context.Context) *entities.SessionUser {
	user, _ := ctx.Value(sessionUserKey).(*entities.SessionUser)
	return user
}

// SessionMiddleware resolves the session cookie and attaches the user to the request.
// A cookie that fails verification is treated as no session.
func SessionMiddleware(provider providers.SessionProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := provider.Resolve(r)
			if err != nil {
				observability.LoggerFromContext(r.Context()).Debug().Err(err).Msg("Ignoring invalid session")
				user = nil
			}
			if user != nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects anonymous requests with 401
func RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, string(apperrors.ErrorTypeUnauthorized), "login required")
			return
		}
		next(w, r)
	}
}

// RequireAdmin rejects anonymous requests with 401 and non-admins with 403
func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return RequireUser(func(w http.ResponseWriter, r *http.Request) {
		if !UserFromContext(r.Context()).IsAdmin() {
			writeError(w, http.StatusForbidden, string(apperrors.ErrorTypeForbidden), "admin role required")
			return
		}
		next(w, r)
	})
}
