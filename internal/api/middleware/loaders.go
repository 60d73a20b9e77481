package middleware

import (
	"net/http"

	"github.com/LordWorm1996/DormNet/internal/application/loaders"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
)

// LoadersMiddleware attaches fresh per-request dataloaders
func LoadersMiddleware(appliances repositories.ApplianceRepository, users repositories.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := loaders.WithLoaders(r.Context(), loaders.NewLoaders(appliances, users))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
