package entities

import (
	"time"
)

// ApplianceStatus represents whether an appliance is currently occupied
type ApplianceStatus string

const (
	ApplianceStatusAvailable ApplianceStatus = "available"
	ApplianceStatusInUse     ApplianceStatus = "in-use"
)

// Appliance represents a bookable resource
type Appliance struct {
	ID             string          `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Type           string          `json:"type" db:"type"`
	Status         ApplianceStatus `json:"status" db:"-"`
	DefaultUseTime *int            `json:"defaultUseTime,omitempty" db:"default_use_time"` // minutes
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// DefaultDuration returns the appliance's default use time, or zero
func (a *Appliance) DefaultDuration() time.Duration {
	if a.DefaultUseTime == nil || *a.DefaultUseTime <= 0 {
		return 0
	}
	return time.Duration(*a.DefaultUseTime) * time.Minute
}

// Summary returns the display fields embedded in listed reservations
func (a *Appliance) Summary() *ApplianceSummary {
	return &ApplianceSummary{ID: a.ID, Name: a.Name, Type: a.Type}
}

// ApplianceSummary is the appliance view embedded in a reservation
type ApplianceSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}
