package entities

import (
	"time"

	"github.com/google/uuid"
)

// ReservationEventType represents the type of reservation event
type ReservationEventType string

const (
	ReservationEventCreated   ReservationEventType = "reservation.created"
	ReservationEventDeleted   ReservationEventType = "reservation.deleted"
	ReservationEventCompleted ReservationEventType = "reservation.completed"
)

// ReservationEvent is published whenever a reservation changes
type ReservationEvent struct {
	ID            string               `json:"id"`
	Type          ReservationEventType `json:"type"`
	ReservationID string               `json:"reservationId"`
	ApplianceID   string               `json:"applianceId"`
	UserID        string               `json:"userId"`
	StartTime     time.Time            `json:"startTime"`
	EndTime       time.Time            `json:"endTime"`
	Timestamp     time.Time            `json:"timestamp"`
}

// NewReservationEvent creates an event describing r
func NewReservationEvent(eventType ReservationEventType, r *Reservation) *ReservationEvent {
	return &ReservationEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		ReservationID: r.ID,
		ApplianceID:   r.ApplianceID,
		UserID:        r.UserID,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Timestamp:     time.Now(),
	}
}
