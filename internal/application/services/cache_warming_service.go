package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
)

// CacheWarmingService primes the directory cache at startup.
// appliances is expected to be the cached repository.
type CacheWarmingService struct {
	appliances repositories.ApplianceRepository
}

// NewCacheWarmingService creates a new cache warming service
func NewCacheWarmingService(appliances repositories.ApplianceRepository) *CacheWarmingService {
	return &CacheWarmingService{appliances: appliances}
}

// WarmCache loads the appliance list, count and each appliance through the cache
func (s *CacheWarmingService) WarmCache(ctx context.Context) error {
	log.Info().Msg("Starting cache warming...")

	appliances, err := s.appliances.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to warm appliance list: %w", err)
	}
	if _, err := s.appliances.Count(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to warm appliance count")
	}

	ids := make([]string, 0, len(appliances))
	for _, a := range appliances {
		ids = append(ids, a.ID)
	}
	if _, err := s.appliances.GetByIDs(ctx, ids); err != nil {
		log.Warn().Err(err).Msg("Failed to warm appliances by id")
	}

	log.Info().Int("appliances", len(appliances)).Msg("Cache warming completed")
	return nil
}
