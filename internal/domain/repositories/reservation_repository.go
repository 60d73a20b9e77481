package repositories

import (
	"context"
	"time"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
)

// ReservationRepository defines the interface for reservation data operations.
// Creation only happens through CreateIfAvailable.
type ReservationRepository interface {
	// CreateIfAvailable persists the reservation unless an active reservation on
	// the same appliance overlaps it. Fails with CONFLICT, or NOT_FOUND when the
	// appliance does not exist.
	CreateIfAvailable(ctx context.Context, reservation *entities.Reservation) error

	// GetByID retrieves a reservation by ID
	GetByID(ctx context.Context, id string) (*entities.Reservation, error)

	// Delete hard-deletes a reservation, NOT_FOUND when nothing was removed
	Delete(ctx context.Context, id string) error

	// FindOverlapping returns the active reservations of an appliance that overlap span
	FindOverlapping(ctx context.Context, applianceID string, span entities.Interval) ([]*entities.Reservation, error)

	// List returns reservations overlapping the filter range ordered by start time
	List(ctx context.Context, filter ReservationFilter) ([]*entities.Reservation, error)

	// CountActive counts reservations in the active state
	CountActive(ctx context.Context) (int, error)

	// CompleteEnded moves active reservations that ended at or before now to completed
	// and returns the rows it changed
	CompleteEnded(ctx context.Context, now time.Time) ([]*entities.Reservation, error)
}

// ReservationFilter defines filters for listing reservations
type ReservationFilter struct {
	RangeStart  time.Time
	RangeEnd    time.Time
	ApplianceID string
	UserID      string
	Status      entities.ReservationStatus
	Limit       int
	Offset      int
}

// Range returns the filter's query window
func (f ReservationFilter) Range() entities.Interval {
	return entities.Interval{Start: f.RangeStart, End: f.RangeEnd}
}

// Matches applies the filter to a single reservation in memory
func (f ReservationFilter) Matches(r *entities.Reservation) bool {
	if f.ApplianceID != "" && r.ApplianceID != f.ApplianceID {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return r.Interval().Overlaps(f.Range())
}
