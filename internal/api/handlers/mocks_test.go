package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/LordWorm1996/DormNet/internal/application/services"
	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
)

// MockReservationService mocks the reservation service
type MockReservationService struct {
	mock.Mock
}

func (m *MockReservationService) CheckAvailability(ctx context.Context, applianceID string, start, end time.Time) (*services.Availability, error) {
	args := m.Called(ctx, applianceID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Availability), args.Error(1)
}

func (m *MockReservationService) Create(ctx context.Context, in services.CreateReservationInput) (*entities.Reservation, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Reservation), args.Error(1)
}

func (m *MockReservationService) Get(ctx context.Context, id string) (*entities.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Reservation), args.Error(1)
}

func (m *MockReservationService) Delete(ctx context.Context, actor *entities.SessionUser, id string) error {
	args := m.Called(ctx, actor, id)
	return args.Error(0)
}

func (m *MockReservationService) ListInRange(ctx context.Context, filter repositories.ReservationFilter) ([]*entities.Reservation, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Reservation), args.Error(1)
}

// MockCalendarService mocks the calendar service
type MockCalendarService struct {
	mock.Mock
}

func (m *MockCalendarService) Calendar(ctx context.Context, view string, reference time.Time, filter repositories.ReservationFilter) (*entities.CalendarView, error) {
	args := m.Called(ctx, view, reference, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.CalendarView), args.Error(1)
}

// MockApplianceService mocks the appliance directory
type MockApplianceService struct {
	mock.Mock
}

func (m *MockApplianceService) List(ctx context.Context) ([]*entities.Appliance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Appliance), args.Error(1)
}

func (m *MockApplianceService) Get(ctx context.Context, id string) (*entities.Appliance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Appliance), args.Error(1)
}

func (m *MockApplianceService) Search(ctx context.Context, query string, limit int) ([]*entities.Appliance, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Appliance), args.Error(1)
}

// MockStatsService mocks the admin stats service
type MockStatsService struct {
	mock.Mock
}

func (m *MockStatsService) Stats(ctx context.Context) (*entities.AdminStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.AdminStats), args.Error(1)
}
