package entities

import (
	"fmt"
	"time"

	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

// CalendarViewType is the partition granularity of a calendar
type CalendarViewType string

const (
	CalendarViewDay   CalendarViewType = "day"
	CalendarViewWeek  CalendarViewType = "week"
	CalendarViewMonth CalendarViewType = "month"
)

// ParseCalendarViewType accepts day, week or month
func ParseCalendarViewType(s string) (CalendarViewType, error) {
	switch CalendarViewType(s) {
	case CalendarViewDay, CalendarViewWeek, CalendarViewMonth:
		return CalendarViewType(s), nil
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("unknown calendar view %q (use day, week or month)", s))
}

// DayBucket holds the reservations starting on one calendar day
type DayBucket struct {
	Date         time.Time      `json:"date"`
	InMonth      bool           `json:"inMonth"`
	IsToday      bool           `json:"isToday"`
	Reservations []*Reservation `json:"reservations"`
}

// CalendarView is a bucketed set of reservations for presentation
type CalendarView struct {
	View       CalendarViewType `json:"view"`
	Reference  time.Time        `json:"reference"`
	RangeStart time.Time        `json:"rangeStart"`
	RangeEnd   time.Time        `json:"rangeEnd"` // exclusive
	Days       []DayBucket      `json:"days"`
}
