package entities

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

// ReservationStatus represents the status of a reservation
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// ParseReservationStatus accepts exactly the three known statuses
func ParseReservationStatus(s string) (ReservationStatus, error) {
	switch ReservationStatus(s) {
	case ReservationStatusActive, ReservationStatusCompleted, ReservationStatusCancelled:
		return ReservationStatus(s), nil
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("unknown reservation status %q", s))
}

// IsTerminal reports whether no further transition is possible
func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationStatusCompleted || s == ReservationStatusCancelled
}

// UnmarshalJSON rejects unknown statuses
func (s *ReservationStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return apperrors.NewValidationError("reservation status must be a string")
	}
	parsed, err := ParseReservationStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Scan implements sql.Scanner so rows with an unexpected status fail loudly
func (s *ReservationStatus) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into ReservationStatus", src)
	}
	parsed, err := ParseReservationStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Reservation is exclusive use of one appliance by one user over [StartTime, EndTime)
type Reservation struct {
	ID          string            `json:"id" db:"id"`
	ApplianceID string            `json:"applianceId" db:"appliance_id"`
	UserID      string            `json:"userId" db:"user_id"`
	StartTime   time.Time         `json:"startTime" db:"start_time"`
	EndTime     time.Time         `json:"endTime" db:"end_time"`
	Status      ReservationStatus `json:"status" db:"status"`
	CreatedAt   time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time         `json:"updatedAt" db:"updated_at"`

	// Display fields, populated on listing
	Appliance *ApplianceSummary `json:"appliance,omitempty" db:"-"`
	User      *UserSummary      `json:"user,omitempty" db:"-"`
}

// Interval returns the reservation's time span
func (r *Reservation) Interval() Interval {
	return Interval{Start: r.StartTime, End: r.EndTime}
}

// IsActive reports whether the reservation takes part in conflict checks
func (r *Reservation) IsActive() bool {
	return r.Status == ReservationStatusActive
}

// ConflictsWith reports whether r blocks the candidate span on the same appliance
func (r *Reservation) ConflictsWith(applianceID string, candidate Interval) bool {
	return r.IsActive() && r.ApplianceID == applianceID && r.Interval().Overlaps(candidate)
}

// Clone returns a shallow copy without display fields
func (r *Reservation) Clone() *Reservation {
	c := *r
	c.Appliance = nil
	c.User = nil
	return &c
}
