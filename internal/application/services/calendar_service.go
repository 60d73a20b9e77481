package services

import (
	"context"
	"sort"
	"time"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
)

// CalendarService builds day, week and month views of reservations
type CalendarService struct {
	reservations *ReservationService
	now          func() time.Time
}

// NewCalendarService creates a new calendar service
func NewCalendarService(reservations *ReservationService) *CalendarService {
	return &CalendarService{
		reservations: reservations,
		now:          time.Now,
	}
}

// Calendar lists the reservations inside the view around reference and buckets them by day.
// filter's range is replaced by the view's range.
func (s *CalendarService) Calendar(ctx context.Context, view string, reference time.Time, filter repositories.ReservationFilter) (*entities.CalendarView, error) {
	viewType, err := entities.ParseCalendarViewType(view)
	if err != nil {
		return nil, err
	}

	filter.RangeStart, filter.RangeEnd = CalendarRange(viewType, reference)
	filter.Limit, filter.Offset = 0, 0

	reservations, err := s.reservations.ListInRange(ctx, filter)
	if err != nil {
		return nil, err
	}
	return BuildCalendar(reservations, viewType, reference, s.now()), nil
}

// CalendarRange returns the [start, end) span covered by a view around reference.
// Weeks run Monday to Sunday; month views cover whole weeks.
func CalendarRange(view entities.CalendarViewType, reference time.Time) (time.Time, time.Time) {
	day := midnight(reference)

	switch view {
	case entities.CalendarViewWeek:
		start := mondayOnOrBefore(day)
		return start, addDays(start, 7)
	case entities.CalendarViewMonth:
		first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		last := time.Date(day.Year(), day.Month()+1, 0, 0, 0, 0, 0, day.Location())
		return mondayOnOrBefore(first), addDays(sundayOnOrAfter(last), 1)
	default:
		return day, addDays(day, 1)
	}
}

// BuildCalendar places each reservation into the bucket of the day containing its
// StartTime, in reference's location. Reservations starting outside the view are dropped.
func BuildCalendar(reservations []*entities.Reservation, view entities.CalendarViewType, reference, now time.Time) *entities.CalendarView {
	loc := reference.Location()
	start, end := CalendarRange(view, reference)
	today := midnight(now.In(loc))

	result := &entities.CalendarView{
		View:       view,
		Reference:  midnight(reference),
		RangeStart: start,
		RangeEnd:   end,
	}

	index := make(map[string]int)
	for d := start; d.Before(end); d = addDays(d, 1) {
		index[dayKey(d)] = len(result.Days)
		result.Days = append(result.Days, entities.DayBucket{
			Date:         d,
			InMonth:      view != entities.CalendarViewMonth || d.Month() == reference.Month(),
			IsToday:      d.Equal(today),
			Reservations: []*entities.Reservation{},
		})
	}

	for _, r := range reservations {
		i, ok := index[dayKey(r.StartTime.In(loc))]
		if !ok {
			continue
		}
		result.Days[i].Reservations = append(result.Days[i].Reservations, r)
	}

	for i := range result.Days {
		bucket := result.Days[i].Reservations
		sort.SliceStable(bucket, func(a, b int) bool {
			return bucket[a].StartTime.Before(bucket[b].StartTime)
		})
	}
	return result
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func addDays(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+n, 0, 0, 0, 0, t.Location())
}

func mondayOnOrBefore(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return addDays(t, -offset)
}

func sundayOnOrAfter(t time.Time) time.Time {
	offset := (7 - int(t.Weekday())) % 7
	return addDays(t, offset)
}
