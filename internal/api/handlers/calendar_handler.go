package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

// CalendarService defines the interface for calendar aggregation
type CalendarService interface {
	Calendar(ctx context.Context, view string, reference time.Time, filter repositories.ReservationFilter) (*entities.CalendarView, error)
}

// CalendarHandler serves bucketed reservation calendars
type CalendarHandler struct {
	service CalendarService
	now     func() time.Time
}

// NewCalendarHandler creates a new calendar handler
func NewCalendarHandler(service CalendarService) *CalendarHandler {
	return &CalendarHandler{service: service, now: time.Now}
}

// GetCalendar handles GET /api/calendar?view=week&date=2025-03-10&applianceId=&userId=&tz=
func (h *CalendarHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	loc := time.UTC
	if tz := query.Get("tz"); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "unknown time zone")
			return
		}
		loc = parsed
	}

	view := query.Get("view")
	if view == "" {
		view = string(entities.CalendarViewWeek)
	}

	reference := h.now().In(loc)
	if date := query.Get("date"); date != "" {
		parsed, ok := parseTime(date, loc)
		if !ok {
			respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "invalid date (use YYYY-MM-DD or RFC3339)")
			return
		}
		reference = parsed.In(loc)
	}

	filter := repositories.ReservationFilter{
		ApplianceID: query.Get("applianceId"),
		UserID:      query.Get("userId"),
	}

	calendar, err := h.service.Calendar(r.Context(), view, reference, filter)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, calendar)
}
