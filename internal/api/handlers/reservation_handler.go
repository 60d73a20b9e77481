package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/LordWorm1996/DormNet/internal/api/middleware"
	"github.com/LordWorm1996/DormNet/internal/application/services"
	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

// ReservationService defines the interface for reservation operations
type ReservationService interface {
	CheckAvailability(ctx context.Context, applianceID string, start, end time.Time) (*services.Availability, error)
	Create(ctx context.Context, in services.CreateReservationInput) (*entities.Reservation, error)
	Get(ctx context.Context, id string) (*entities.Reservation, error)
	Delete(ctx context.Context, actor *entities.SessionUser, id string) error
	ListInRange(ctx context.Context, filter repositories.ReservationFilter) ([]*entities.Reservation, error)
}

// ReservationHandler handles booking requests
type ReservationHandler struct {
	service ReservationService
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(service ReservationService) *ReservationHandler {
	return &ReservationHandler{service: service}
}

// CheckConflict handles GET /api/bookings/conflict
func (h *ReservationHandler) CheckConflict(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	applianceID := query.Get("applianceId")
	if applianceID == "" {
		respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "applianceId is required")
		return
	}

	start, ok := parseTime(query.Get("startTime"), time.UTC)
	if !ok {
		respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "invalid startTime (use RFC3339)")
		return
	}
	end, ok := parseTime(query.Get("endTime"), time.UTC)
	if !ok {
		respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "invalid endTime (use RFC3339)")
		return
	}

	availability, err := h.service.CheckAvailability(r.Context(), applianceID, start, end)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, availability)
}

// ListReservations handles GET /api/bookings
func (h *ReservationHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	rawStart, rawEnd := query.Get("startDate"), query.Get("endDate")
	if rawStart == "" || rawEnd == "" {
		respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "startDate and endDate are required")
		return
	}

	start, ok := parseTime(rawStart, time.UTC)
	if !ok {
		respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "invalid startDate (use YYYY-MM-DD or RFC3339)")
		return
	}
	end, ok := parseTime(rawEnd, time.UTC)
	if !ok {
		respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "invalid endDate (use YYYY-MM-DD or RFC3339)")
		return
	}
	// A bare end date includes that whole day
	if isDateOnly(rawEnd) {
		end = end.AddDate(0, 0, 1)
	}

	filter := repositories.ReservationFilter{
		RangeStart:  start,
		RangeEnd:    end,
		ApplianceID: query.Get("applianceId"),
		UserID:      query.Get("userId"),
	}

	if status := query.Get("status"); status != "" {
		parsed, err := entities.ParseReservationStatus(status)
		if err != nil {
			respondWithAppError(w, r, err)
			return
		}
		filter.Status = parsed
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	reservations, err := h.service.ListInRange(r.Context(), filter)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, reservations)
}

// CreateReservation handles POST /api/bookings
func (h *ReservationHandler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, apperrors.ErrorTypeUnauthorized, "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var in services.CreateReservationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "invalid request payload")
		return
	}
	in.UserID = user.ID

	reservation, err := h.service.Create(r.Context(), in)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, reservation)
}

// GetReservation handles GET /api/bookings/{id}
func (h *ReservationHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "reservation ID is required")
		return
	}

	reservation, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, reservation)
}

// DeleteReservation handles DELETE /api/bookings/{id}
func (h *ReservationHandler) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "reservation ID is required")
		return
	}

	if err := h.service.Delete(r.Context(), middleware.UserFromContext(r.Context()), id); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Deleted"})
}
