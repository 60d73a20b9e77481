package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
)

// CachedApplianceAdapter wraps an ApplianceRepository with read-through caching.
// Only directory fields are cached; status is derived by the service on every read.
type CachedApplianceAdapter struct {
	adapter repositories.ApplianceRepository
	cache   providers.CacheProvider
}

// NewCachedApplianceAdapter creates a new cached appliance adapter
func NewCachedApplianceAdapter(adapter repositories.ApplianceRepository, cache providers.CacheProvider) repositories.ApplianceRepository {
	return &CachedApplianceAdapter{
		adapter: adapter,
		cache:   cache,
	}
}

// Cache TTLs (in seconds)
const (
	applianceByIDTTL  = 300
	appliancesListTTL = 180
	applianceCountTTL = 60
)

// ApplianceCachePattern matches every key written by CachedApplianceAdapter
const ApplianceCachePattern = "appliance*"

func applianceCacheKey(id string) string {
	return fmt.Sprintf("appliance:%s", id)
}

const (
	appliancesListCacheKey  = "appliances:list"
	appliancesCountCacheKey = "appliances:count"
)

// GetByID retrieves an appliance by ID with caching
func (a *CachedApplianceAdapter) GetByID(ctx context.Context, id string) (*entities.Appliance, error) {
	cacheKey := applianceCacheKey(id)

	var appliance entities.Appliance
	if a.lookup(ctx, cacheKey, &appliance) {
		return &appliance, nil
	}

	fetched, err := a.adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.store(ctx, cacheKey, fetched, applianceByIDTTL)
	return fetched, nil
}

// GetByIDs retrieves appliances per ID from cache, fetching the misses in one batch
func (a *CachedApplianceAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.Appliance, error) {
	if len(ids) == 0 {
		return []*entities.Appliance{}, nil
	}

	result := make([]*entities.Appliance, 0, len(ids))
	missingIDs := make([]string, 0)
	for _, id := range ids {
		var appliance entities.Appliance
		if a.lookup(ctx, applianceCacheKey(id), &appliance) {
			result = append(result, &appliance)
			continue
		}
		missingIDs = append(missingIDs, id)
	}

	if len(missingIDs) == 0 {
		return result, nil
	}

	fetched, err := a.adapter.GetByIDs(ctx, missingIDs)
	if err != nil {
		return nil, err
	}
	for _, appliance := range fetched {
		a.store(ctx, applianceCacheKey(appliance.ID), appliance, applianceByIDTTL)
	}
	return append(result, fetched...), nil
}

// List returns every appliance with caching
func (a *CachedApplianceAdapter) List(ctx context.Context) ([]*entities.Appliance, error) {
	var appliances []*entities.Appliance
	if a.lookup(ctx, appliancesListCacheKey, &appliances) {
		return appliances, nil
	}

	appliances, err := a.adapter.List(ctx)
	if err != nil {
		return nil, err
	}
	a.store(ctx, appliancesListCacheKey, appliances, appliancesListTTL)
	return appliances, nil
}

// Count returns the number of appliances with caching
func (a *CachedApplianceAdapter) Count(ctx context.Context) (int, error) {
	var n int
	if a.lookup(ctx, appliancesCountCacheKey, &n) {
		return n, nil
	}

	n, err := a.adapter.Count(ctx)
	if err != nil {
		return 0, err
	}
	a.store(ctx, appliancesCountCacheKey, n, applianceCountTTL)
	return n, nil
}

func (a *CachedApplianceAdapter) lookup(ctx context.Context, key string, dest interface{}) bool {
	cached, err := a.cache.Get(ctx, key)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(cached, dest); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached value")
		return false
	}
	return true
}

func (a *CachedApplianceAdapter) store(ctx context.Context, key string, value interface{}, ttl int) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, key, data, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache value")
	}
}
