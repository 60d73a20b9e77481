package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/LordWorm1996/DormNet/internal/adapters/events"
	"github.com/LordWorm1996/DormNet/internal/adapters/memory"
	"github.com/LordWorm1996/DormNet/internal/application/loaders"
	"github.com/LordWorm1996/DormNet/internal/application/services"
	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

// Monday
var monday = time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func intPtr(v int) *int { return &v }

func newFixture() *memory.Store {
	store := memory.NewStore()
	store.PutAppliance(&entities.Appliance{ID: "washer-1", Name: "Washer 1", Type: "washer", DefaultUseTime: intPtr(45)})
	store.PutAppliance(&entities.Appliance{ID: "dryer-1", Name: "Dryer 1", Type: "dryer"})
	store.PutUser(&entities.User{ID: "u-1", Name: "Ana", Email: "ana@dorm.test"})
	store.PutUser(&entities.User{ID: "u-2", Name: "Ben", Email: "ben@dorm.test"})
	return store
}

func newReservationService(store *memory.Store, bus providers.EventBus) *services.ReservationService {
	return services.NewReservationService(store.Reservations(), store.Appliances(), store.Users(), bus, 6*time.Hour)
}

func book(t *testing.T, svc *services.ReservationService, applianceID, userID string, start, end time.Time) *entities.Reservation {
	t.Helper()
	r, err := svc.Create(context.Background(), services.CreateReservationInput{
		ApplianceID: applianceID,
		UserID:      userID,
		StartTime:   start,
		EndTime:     end,
	})
	require.NoError(t, err)
	return r
}

func TestReservationService_CheckAvailability(t *testing.T) {
	ctx := context.Background()
	store := newFixture()
	svc := newReservationService(store, nil)
	existing := book(t, svc, "washer-1", "u-1", at(10, 0), at(11, 0))

	tests := []struct {
		name        string
		applianceID string
		start, end  time.Time
		available   bool
		errType     apperrors.ErrorType
	}{
		{name: "free slot", applianceID: "washer-1", start: at(12, 0), end: at(13, 0), available: true},
		{name: "touching before", applianceID: "washer-1", start: at(9, 0), end: at(10, 0), available: true},
		{name: "touching after", applianceID: "washer-1", start: at(11, 0), end: at(12, 0), available: true},
		{name: "strict overlap", applianceID: "washer-1", start: at(10, 30), end: at(11, 30)},
		{name: "contained", applianceID: "washer-1", start: at(10, 15), end: at(10, 45)},
		{name: "other appliance", applianceID: "dryer-1", start: at(10, 0), end: at(11, 0), available: true},
		{name: "missing appliance id", start: at(10, 0), end: at(11, 0), errType: apperrors.ErrorTypeValidation},
		{name: "empty interval", applianceID: "washer-1", start: at(10, 0), end: at(10, 0), errType: apperrors.ErrorTypeInvalidInterval},
		{name: "reversed interval", applianceID: "washer-1", start: at(11, 0), end: at(10, 0), errType: apperrors.ErrorTypeInvalidInterval},
		{name: "unknown appliance", applianceID: "fridge", start: at(10, 0), end: at(11, 0), errType: apperrors.ErrorTypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.CheckAvailability(ctx, tt.applianceID, tt.start, tt.end)
			if tt.errType != "" {
				assert.True(t, apperrors.IsType(err, tt.errType), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.available, got.Available)
			if !tt.available {
				require.Len(t, got.Conflicts, 1)
				assert.Equal(t, existing.ID, got.Conflicts[0].ID)
			}
		})
	}
}

func TestReservationService_CheckAvailability_IgnoresCancelled(t *testing.T) {
	ctx := context.Background()
	repo := new(MockReservationRepository)
	store := newFixture()
	svc := services.NewReservationService(repo, store.Appliances(), store.Users(), nil, 0)

	span := entities.Interval{Start: at(10, 0), End: at(11, 0)}
	repo.On("FindOverlapping", mock.Anything, "washer-1", span).Return([]*entities.Reservation{
		{ID: "r-1", ApplianceID: "washer-1", StartTime: at(10, 0), EndTime: at(11, 0), Status: entities.ReservationStatusCancelled},
	}, nil)

	got, err := svc.CheckAvailability(ctx, "washer-1", span.Start, span.End)
	require.NoError(t, err)
	assert.True(t, got.Available)
	repo.AssertExpectations(t)
}

func TestReservationService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes on both channels", func(t *testing.T) {
		store := newFixture()
		bus := events.NewMemoryEventBus()
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		updates, err := bus.Subscribe(subCtx, providers.EventChannelReservationUpdates)
		require.NoError(t, err)
		applianceUpdates, err := bus.Subscribe(subCtx, providers.GetApplianceChannel("washer-1"))
		require.NoError(t, err)

		r := book(t, newReservationService(store, bus), "washer-1", "u-1", at(9, 0), at(10, 0))
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, entities.ReservationStatusActive, r.Status)

		for _, ch := range []<-chan *entities.ReservationEvent{updates, applianceUpdates} {
			select {
			case event := <-ch:
				assert.Equal(t, entities.ReservationEventCreated, event.Type)
				assert.Equal(t, r.ID, event.ReservationID)
			case <-time.After(time.Second):
				t.Fatal("event not delivered")
			}
		}
	})

	t.Run("overlap is a conflict", func(t *testing.T) {
		svc := newReservationService(newFixture(), nil)
		book(t, svc, "washer-1", "u-1", at(9, 0), at(10, 0))

		_, err := svc.Create(ctx, services.CreateReservationInput{
			ApplianceID: "washer-1", UserID: "u-2", StartTime: at(9, 30), EndTime: at(10, 30),
		})
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	})

	t.Run("end from duration minutes", func(t *testing.T) {
		svc := newReservationService(newFixture(), nil)
		r, err := svc.Create(ctx, services.CreateReservationInput{
			ApplianceID: "dryer-1", UserID: "u-1", StartTime: at(9, 0), DurationMinutes: 90,
		})
		require.NoError(t, err)
		assert.Equal(t, at(10, 30), r.EndTime)
	})

	t.Run("end from appliance default use time", func(t *testing.T) {
		svc := newReservationService(newFixture(), nil)
		r, err := svc.Create(ctx, services.CreateReservationInput{
			ApplianceID: "washer-1", UserID: "u-1", StartTime: at(9, 0),
		})
		require.NoError(t, err)
		assert.Equal(t, at(9, 45), r.EndTime)
	})

	t.Run("no end and no default", func(t *testing.T) {
		svc := newReservationService(newFixture(), nil)
		_, err := svc.Create(ctx, services.CreateReservationInput{
			ApplianceID: "dryer-1", UserID: "u-1", StartTime: at(9, 0),
		})
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	})

	t.Run("rejects bad input", func(t *testing.T) {
		svc := newReservationService(newFixture(), nil)
		cases := map[apperrors.ErrorType][]services.CreateReservationInput{
			apperrors.ErrorTypeValidation: {
				{UserID: "u-1", StartTime: at(9, 0), EndTime: at(10, 0)},
				{ApplianceID: "washer-1", StartTime: at(9, 0), EndTime: at(10, 0)},
				{ApplianceID: "washer-1", UserID: "u-1", EndTime: at(10, 0)},
				{ApplianceID: "washer-1", UserID: "u-1", StartTime: at(9, 0), DurationMinutes: -5},
				{ApplianceID: "washer-1", UserID: "u-1", StartTime: at(9, 0), EndTime: at(16, 0)},
			},
			apperrors.ErrorTypeInvalidInterval: {
				{ApplianceID: "washer-1", UserID: "u-1", StartTime: at(10, 0), EndTime: at(10, 0)},
				{ApplianceID: "washer-1", UserID: "u-1", StartTime: at(10, 0), EndTime: at(9, 0)},
			},
			apperrors.ErrorTypeNotFound: {
				{ApplianceID: "fridge", UserID: "u-1", StartTime: at(9, 0), EndTime: at(10, 0)},
			},
		}
		for errType, inputs := range cases {
			for _, in := range inputs {
				_, err := svc.Create(ctx, in)
				assert.True(t, apperrors.IsType(err, errType), "input %+v: got %v", in, err)
			}
		}
	})

	t.Run("publish failure does not fail the booking", func(t *testing.T) {
		bus := new(MockEventBus)
		bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

		store := newFixture()
		r := book(t, newReservationService(store, bus), "washer-1", "u-1", at(9, 0), at(10, 0))

		stored, err := store.Reservations().GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, stored.ID)
		bus.AssertNumberOfCalls(t, "Publish", 2)
	})
}

func TestReservationService_Create_ConcurrentExactlyOneWins(t *testing.T) {
	svc := newReservationService(newFixture(), nil)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Create(context.Background(), services.CreateReservationInput{
				ApplianceID: "washer-1",
				UserID:      "u-1",
				StartTime:   at(9, i),
				EndTime:     at(10, i),
			})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict), err)
	}
	assert.Equal(t, 1, succeeded)
}

func TestReservationService_Delete(t *testing.T) {
	ctx := context.Background()
	owner := &entities.SessionUser{ID: "u-1", Role: entities.RoleUser}
	other := &entities.SessionUser{ID: "u-2", Role: entities.RoleUser}
	admin := &entities.SessionUser{ID: "admin", Role: entities.RoleAdmin}

	t.Run("owner deletes, second delete is not found", func(t *testing.T) {
		svc := newReservationService(newFixture(), nil)
		r := book(t, svc, "washer-1", "u-1", at(9, 0), at(10, 0))

		require.NoError(t, svc.Delete(ctx, owner, r.ID))
		err := svc.Delete(ctx, owner, r.ID)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	})

	t.Run("unknown id", func(t *testing.T) {
		svc := newReservationService(newFixture(), nil)
		err := svc.Delete(ctx, admin, "does-not-exist")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	})

	t.Run("other user is forbidden, admin is allowed", func(t *testing.T) {
		svc := newReservationService(newFixture(), nil)
		r := book(t, svc, "washer-1", "u-1", at(9, 0), at(10, 0))

		err := svc.Delete(ctx, other, r.ID)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeForbidden))
		assert.NoError(t, svc.Delete(ctx, admin, r.ID))
	})

	t.Run("anonymous is unauthorized", func(t *testing.T) {
		svc := newReservationService(newFixture(), nil)
		err := svc.Delete(ctx, nil, "r-1")
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnauthorized))
	})

	t.Run("deleted slot is free again", func(t *testing.T) {
		svc := newReservationService(newFixture(), nil)
		r := book(t, svc, "washer-1", "u-1", at(9, 0), at(10, 0))
		require.NoError(t, svc.Delete(ctx, owner, r.ID))
		book(t, svc, "washer-1", "u-2", at(9, 0), at(10, 0))
	})
}

func TestReservationService_ListInRange(t *testing.T) {
	ctx := context.Background()
	store := newFixture()
	svc := newReservationService(store, nil)

	late := book(t, svc, "washer-1", "u-2", at(15, 0), at(16, 0))
	early := book(t, svc, "dryer-1", "u-1", at(8, 0), at(9, 0))
	book(t, svc, "washer-1", "u-1", at(30, 0), at(31, 0))

	t.Run("ordered and decorated", func(t *testing.T) {
		got, err := svc.ListInRange(ctx, repositories.ReservationFilter{RangeStart: monday, RangeEnd: monday.Add(24 * time.Hour)})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, early.ID, got[0].ID)
		assert.Equal(t, late.ID, got[1].ID)

		require.NotNil(t, got[0].Appliance)
		assert.Equal(t, "Dryer 1", got[0].Appliance.Name)
		require.NotNil(t, got[1].User)
		assert.Equal(t, "ben@dorm.test", got[1].User.Email)
	})

	t.Run("uses request loaders when attached", func(t *testing.T) {
		lctx := loaders.WithLoaders(ctx, loaders.NewLoaders(store.Appliances(), store.Users()))
		got, err := svc.ListInRange(lctx, repositories.ReservationFilter{
			RangeStart: monday, RangeEnd: monday.Add(24 * time.Hour), ApplianceID: "washer-1",
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Washer 1", got[0].Appliance.Name)
	})

	t.Run("empty range is invalid", func(t *testing.T) {
		_, err := svc.ListInRange(ctx, repositories.ReservationFilter{RangeStart: monday, RangeEnd: monday})
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidInterval))
	})

	t.Run("store errors keep their type", func(t *testing.T) {
		repo := new(MockReservationRepository)
		repo.On("List", mock.Anything, mock.Anything).Return(nil, apperrors.NewStoreUnavailableError("timeout", context.DeadlineExceeded))
		failing := services.NewReservationService(repo, store.Appliances(), store.Users(), nil, 0)

		_, err := failing.ListInRange(ctx, repositories.ReservationFilter{RangeStart: monday, RangeEnd: monday.Add(time.Hour)})
		assert.True(t, apperrors.Retryable(err))
	})
}

func TestReservationService_CompleteExpired(t *testing.T) {
	ctx := context.Background()
	bus := new(MockEventBus)
	bus.On("Publish", mock.Anything, mock.Anything, mock.MatchedBy(func(e *entities.ReservationEvent) bool {
		return e.Type == entities.ReservationEventCreated
	})).Return(nil)
	bus.On("Publish", mock.Anything, mock.Anything, mock.MatchedBy(func(e *entities.ReservationEvent) bool {
		return e.Type == entities.ReservationEventCompleted
	})).Return(nil)

	svc := newReservationService(newFixture(), bus)
	ended := book(t, svc, "washer-1", "u-1", at(8, 0), at(9, 0))
	book(t, svc, "washer-1", "u-1", at(9, 0), at(11, 0))

	completed, err := svc.CompleteExpired(ctx, at(10, 0))
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, ended.ID, completed[0].ID)
	assert.Equal(t, entities.ReservationStatusCompleted, completed[0].Status)

	// two bookings and one completion, each on two channels
	bus.AssertNumberOfCalls(t, "Publish", 6)
}
