package entities

import (
	"fmt"
	"time"

	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

// Interval is a half-open time span [Start, End)
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval returns the interval [start, end) or an INVALID_INTERVAL error
// when start is not strictly before end.
func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, apperrors.NewInvalidIntervalError(
			fmt.Sprintf("start %s must be before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339)),
		)
	}
	return Interval{Start: start, End: end}, nil
}

// Overlaps reports whether the two intervals share any instant.
// Intervals that only touch (one ends exactly when the other starts) do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains reports whether t falls inside [Start, End)
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Duration returns End - Start
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}
