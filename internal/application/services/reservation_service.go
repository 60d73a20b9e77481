package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/application/loaders"
	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/observability"
	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

// CreateReservationInput is a booking request.
// EndTime may be omitted when DurationMinutes is set or the appliance has a default use time.
type CreateReservationInput struct {
	ApplianceID     string    `json:"applianceId"`
	UserID          string    `json:"-"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationMinutes int       `json:"durationMinutes,omitempty"`
}

// Availability is the result of a conflict check
type Availability struct {
	Available bool                    `json:"available"`
	Conflicts []*entities.Reservation `json:"-"`
}

// ReservationService handles booking, cancellation and listing of reservations
type ReservationService struct {
	repo        repositories.ReservationRepository
	appliances  repositories.ApplianceRepository
	users       repositories.UserRepository
	eventBus    providers.EventBus
	metrics     *observability.Metrics
	maxDuration time.Duration
}

// NewReservationService creates a new reservation service.
// eventBus may be nil; maxDuration <= 0 disables the length limit.
func NewReservationService(
	repo repositories.ReservationRepository,
	appliances repositories.ApplianceRepository,
	users repositories.UserRepository,
	eventBus providers.EventBus,
	maxDuration time.Duration,
) *ReservationService {
	return &ReservationService{
		repo:        repo,
		appliances:  appliances,
		users:       users,
		eventBus:    eventBus,
		maxDuration: maxDuration,
	}
}

// SetMetrics enables reservation counters
func (s *ReservationService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// CheckAvailability reports whether [start, end) is free on the appliance
func (s *ReservationService) CheckAvailability(ctx context.Context, applianceID string, start, end time.Time) (*Availability, error) {
	if strings.TrimSpace(applianceID) == "" {
		return nil, apperrors.NewValidationError("applianceId is required")
	}
	span, err := entities.NewInterval(start, end)
	if err != nil {
		return nil, err
	}

	if _, err := s.appliances.GetByID(ctx, applianceID); err != nil {
		return nil, err
	}

	candidates, err := s.repo.FindOverlapping(ctx, applianceID, span)
	if err != nil {
		return nil, err
	}

	conflicts := make([]*entities.Reservation, 0, len(candidates))
	for _, r := range candidates {
		if r.ConflictsWith(applianceID, span) {
			conflicts = append(conflicts, r)
		}
	}
	return &Availability{Available: len(conflicts) == 0, Conflicts: conflicts}, nil
}

// Create books an appliance slot. The overlap check and the insert are one atomic step.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (*entities.Reservation, error) {
	if strings.TrimSpace(in.ApplianceID) == "" {
		return nil, apperrors.NewValidationError("applianceId is required")
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, apperrors.NewValidationError("userId is required")
	}
	if in.StartTime.IsZero() {
		return nil, apperrors.NewValidationError("startTime is required")
	}
	if in.DurationMinutes < 0 {
		return nil, apperrors.NewValidationError("durationMinutes must not be negative")
	}

	end := in.EndTime
	if end.IsZero() && in.DurationMinutes > 0 {
		end = in.StartTime.Add(time.Duration(in.DurationMinutes) * time.Minute)
	}
	if end.IsZero() {
		appliance, err := s.appliances.GetByID(ctx, in.ApplianceID)
		if err != nil {
			return nil, err
		}
		d := appliance.DefaultDuration()
		if d == 0 {
			return nil, apperrors.NewValidationError("endTime or durationMinutes is required")
		}
		end = in.StartTime.Add(d)
	}

	span, err := entities.NewInterval(in.StartTime.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	if s.maxDuration > 0 && span.Duration() > s.maxDuration {
		return nil, apperrors.NewValidationError(fmt.Sprintf("reservations may not exceed %s", s.maxDuration))
	}

	reservation := &entities.Reservation{
		ApplianceID: in.ApplianceID,
		UserID:      in.UserID,
		StartTime:   span.Start,
		EndTime:     span.End,
		Status:      entities.ReservationStatusActive,
	}

	if err := s.repo.CreateIfAvailable(ctx, reservation); err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			observability.RecordReservation(ctx, s.metrics, "conflict", in.ApplianceID)
		}
		return nil, err
	}

	observability.RecordReservation(ctx, s.metrics, "created", reservation.ApplianceID)
	s.publish(ctx, entities.ReservationEventCreated, reservation)
	return reservation, nil
}

// Get retrieves a reservation by ID
func (s *ReservationService) Get(ctx context.Context, id string) (*entities.Reservation, error) {
	return s.repo.GetByID(ctx, id)
}

// Delete removes a reservation on behalf of its owner or an admin
func (s *ReservationService) Delete(ctx context.Context, actor *entities.SessionUser, id string) error {
	if actor == nil {
		return apperrors.NewUnauthorizedError("login required")
	}

	reservation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanManage(reservation) {
		return apperrors.NewForbiddenError("only the owner or an admin may delete this reservation")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	observability.RecordReservation(ctx, s.metrics, "deleted", reservation.ApplianceID)
	s.publish(ctx, entities.ReservationEventDeleted, reservation)
	return nil
}

// ListInRange returns reservations overlapping the filter range ordered by start time,
// decorated with appliance and user summaries
func (s *ReservationService) ListInRange(ctx context.Context, filter repositories.ReservationFilter) ([]*entities.Reservation, error) {
	if _, err := entities.NewInterval(filter.RangeStart, filter.RangeEnd); err != nil {
		return nil, err
	}

	reservations, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if err := s.decorate(ctx, reservations); err != nil {
		return nil, err
	}
	return reservations, nil
}

// CompleteExpired marks active reservations that ended at or before now as completed
func (s *ReservationService) CompleteExpired(ctx context.Context, now time.Time) ([]*entities.Reservation, error) {
	completed, err := s.repo.CompleteEnded(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, r := range completed {
		s.publish(ctx, entities.ReservationEventCompleted, r)
	}
	return completed, nil
}

func (s *ReservationService) decorate(ctx context.Context, reservations []*entities.Reservation) error {
	if len(reservations) == 0 {
		return nil
	}

	l := loaders.For(ctx)
	if l == nil {
		l = loaders.NewLoaders(s.appliances, s.users)
	}

	applianceThunks := make([]dataloader.Thunk[*entities.Appliance], len(reservations))
	userThunks := make([]dataloader.Thunk[*entities.User], len(reservations))
	for i, r := range reservations {
		applianceThunks[i] = l.ApplianceLoader.Load(ctx, r.ApplianceID)
		userThunks[i] = l.UserLoader.Load(ctx, r.UserID)
	}

	for i, r := range reservations {
		appliance, err := applianceThunks[i]()
		if err != nil {
			return err
		}
		if appliance != nil {
			r.Appliance = appliance.Summary()
		}

		user, err := userThunks[i]()
		if err != nil {
			return err
		}
		if user != nil {
			r.User = user.Summary()
		}
	}
	return nil
}

// publish is best effort: a failed publish never fails the mutation
func (s *ReservationService) publish(ctx context.Context, eventType entities.ReservationEventType, r *entities.Reservation) {
	if s.eventBus == nil {
		return
	}
	event := entities.NewReservationEvent(eventType, r)
	for _, channel := range providers.ChannelsFor(event) {
		if err := s.eventBus.Publish(ctx, channel, event); err != nil {
			log.Warn().Err(err).
				Str("channel", channel).
				Str("reservation_id", r.ID).
				Str("event_type", string(eventType)).
				Msg("Failed to publish reservation event")
		}
	}
}
