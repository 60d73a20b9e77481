package handlers

import (
	"context"
	"net/http"

	"github.com/LordWorm1996/DormNet/internal/api/middleware"
	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

// StatsService defines the interface for admin statistics
type StatsService interface {
	Stats(ctx context.Context) (*entities.AdminStats, error)
}

// AccountHandler serves session-bound endpoints
type AccountHandler struct {
	stats StatsService
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(stats StatsService) *AccountHandler {
	return &AccountHandler{stats: stats}
}

// Me handles GET /api/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, apperrors.ErrorTypeUnauthorized, "authentication required")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// AdminStats handles GET /api/admin/stats
func (h *AccountHandler) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}
