package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

// ApplianceService defines the interface for the appliance directory
type ApplianceService interface {
	List(ctx context.Context) ([]*entities.Appliance, error)
	Get(ctx context.Context, id string) (*entities.Appliance, error)
	Search(ctx context.Context, query string, limit int) ([]*entities.Appliance, error)
}

// ApplianceHandler handles appliance directory requests
type ApplianceHandler struct {
	service ApplianceService
}

// NewApplianceHandler creates a new appliance handler
func NewApplianceHandler(service ApplianceService) *ApplianceHandler {
	return &ApplianceHandler{service: service}
}

// ListAppliances handles GET /api/appliances
func (h *ApplianceHandler) ListAppliances(w http.ResponseWriter, r *http.Request) {
	appliances, err := h.service.List(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, appliances)
}

// SearchAppliances handles GET /api/appliances/search?q=washer&limit=10
func (h *ApplianceHandler) SearchAppliances(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "invalid limit")
			return
		}
		limit = parsed
	}

	appliances, err := h.service.Search(r.Context(), query.Get("q"), limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, appliances)
}

// GetAppliance handles GET /api/appliances/{id}
func (h *ApplianceHandler) GetAppliance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "appliance ID is required")
		return
	}

	appliance, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, appliance)
}
