package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
)

const defaultSearchLimit = 20

// ApplianceService serves the appliance directory with live occupancy
type ApplianceService struct {
	appliances   repositories.ApplianceRepository
	reservations repositories.ReservationRepository
	searchRepo   repositories.ApplianceSearchRepository
	now          func() time.Time
}

// NewApplianceService creates a new appliance service. searchRepo may be nil.
func NewApplianceService(
	appliances repositories.ApplianceRepository,
	reservations repositories.ReservationRepository,
	searchRepo repositories.ApplianceSearchRepository,
) *ApplianceService {
	return &ApplianceService{
		appliances:   appliances,
		reservations: reservations,
		searchRepo:   searchRepo,
		now:          time.Now,
	}
}

// List returns every appliance; Status is in-use while an active reservation covers now
func (s *ApplianceService) List(ctx context.Context) ([]*entities.Appliance, error) {
	appliances, err := s.appliances.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.applyStatus(ctx, appliances); err != nil {
		return nil, err
	}
	return appliances, nil
}

// Get retrieves an appliance by ID
func (s *ApplianceService) Get(ctx context.Context, id string) (*entities.Appliance, error) {
	appliance, err := s.appliances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyStatus(ctx, []*entities.Appliance{appliance}); err != nil {
		return nil, err
	}
	return appliance, nil
}

// Search matches appliances by name or type. Uses the search index when configured
// and falls back to substring matching over the directory.
func (s *ApplianceService) Search(ctx context.Context, query string, limit int) ([]*entities.Appliance, error) {
	query = strings.TrimSpace(query)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if query == "" {
		return s.List(ctx)
	}

	if s.searchRepo != nil {
		found, err := s.searchIndex(ctx, query, limit)
		if err == nil {
			return found, nil
		}
		log.Warn().Err(err).Str("query", query).Msg("Appliance search index failed, falling back to directory scan")
	}

	all, err := s.appliances.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	matches := make([]*entities.Appliance, 0)
	for _, a := range all {
		if strings.Contains(strings.ToLower(a.Name), needle) || strings.Contains(strings.ToLower(a.Type), needle) {
			matches = append(matches, a)
			if len(matches) == limit {
				break
			}
		}
	}
	if err := s.applyStatus(ctx, matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// Reindex pushes every appliance into the search index and returns how many were indexed
func (s *ApplianceService) Reindex(ctx context.Context) (int, error) {
	if s.searchRepo == nil {
		return 0, nil
	}
	appliances, err := s.appliances.List(ctx)
	if err != nil {
		return 0, err
	}
	indexed := 0
	for _, a := range appliances {
		if err := s.searchRepo.Index(ctx, a); err != nil {
			return indexed, err
		}
		indexed++
	}
	return indexed, nil
}

func (s *ApplianceService) searchIndex(ctx context.Context, query string, limit int) ([]*entities.Appliance, error) {
	ids, err := s.searchRepo.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*entities.Appliance{}, nil
	}

	found, err := s.appliances.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*entities.Appliance, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}

	// keep index ranking, skip documents whose appliance is gone
	ordered := make([]*entities.Appliance, 0, len(found))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			ordered = append(ordered, a)
		}
	}
	if err := s.applyStatus(ctx, ordered); err != nil {
		return nil, err
	}
	return ordered, nil
}

func (s *ApplianceService) applyStatus(ctx context.Context, appliances []*entities.Appliance) error {
	if len(appliances) == 0 {
		return nil
	}

	now := s.now().UTC()
	filter := repositories.ReservationFilter{
		RangeStart: now,
		RangeEnd:   now.Add(time.Nanosecond),
		Status:     entities.ReservationStatusActive,
	}
	if len(appliances) == 1 {
		filter.ApplianceID = appliances[0].ID
	}

	current, err := s.reservations.List(ctx, filter)
	if err != nil {
		return err
	}
	inUse := make(map[string]bool, len(current))
	for _, r := range current {
		if r.IsActive() && r.Interval().Contains(now) {
			inUse[r.ApplianceID] = true
		}
	}

	for _, a := range appliances {
		if inUse[a.ID] {
			a.Status = entities.ApplianceStatusInUse
		} else {
			a.Status = entities.ApplianceStatusAvailable
		}
	}
	return nil
}
