package services

import (
	"context"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
)

// StatsService aggregates counts for the admin dashboard
type StatsService struct {
	users        repositories.UserRepository
	appliances   repositories.ApplianceRepository
	reservations repositories.ReservationRepository
}

// NewStatsService creates a new stats service
func NewStatsService(users repositories.UserRepository, appliances repositories.ApplianceRepository, reservations repositories.ReservationRepository) *StatsService {
	return &StatsService{
		users:        users,
		appliances:   appliances,
		reservations: reservations,
	}
}

// Stats returns user, appliance and active reservation counts
func (s *StatsService) Stats(ctx context.Context) (*entities.AdminStats, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	appliances, err := s.appliances.Count(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.reservations.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	return &entities.AdminStats{
		UserCount:              users,
		ApplianceCount:         appliances,
		ActiveReservationCount: active,
	}, nil
}
