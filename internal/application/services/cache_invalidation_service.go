package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
)

// HTTP response cache patterns that embed reservation state
var reservationCachePatterns = []string{
	"http:cache:*calendar*",
	"http:cache:*bookings*",
	"http:cache:*appliances*",
}

// CacheInvalidationService drops cached responses when reservations change
type CacheInvalidationService struct {
	cache    providers.CacheProvider
	eventBus providers.EventBus
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(cache providers.CacheProvider, eventBus providers.EventBus) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		cache:    cache,
		eventBus: eventBus,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins listening for reservation events
func (s *CacheInvalidationService) Start() error {
	eventChan, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelReservationUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to reservation updates: %w", err)
	}

	s.started = true
	go s.processEvents(eventChan)
	log.Info().Msg("Cache invalidation service started")
	return nil
}

// Stop stops the cache invalidation service and waits for the event loop to exit
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	if s.started {
		<-s.done
	}
	log.Info().Msg("Cache invalidation service stopped")
}

func (s *CacheInvalidationService) processEvents(eventChan <-chan *entities.ReservationEvent) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			s.handleEvent(event)
		}
	}
}

func (s *CacheInvalidationService) handleEvent(event *entities.ReservationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Debug().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("appliance_id", event.ApplianceID).
		Msg("Processing cache invalidation")

	if err := s.InvalidateReservationCaches(ctx); err != nil {
		log.Warn().Err(err).Str("event_id", event.ID).Msg("Failed to invalidate reservation caches")
	}
}

// InvalidateReservationCaches deletes every cached response that embeds reservation state
func (s *CacheInvalidationService) InvalidateReservationCaches(ctx context.Context) error {
	for _, pattern := range reservationCachePatterns {
		if err := s.cache.DeletePattern(ctx, pattern); err != nil {
			return fmt.Errorf("failed to invalidate pattern %s: %w", pattern, err)
		}
	}
	return nil
}

// InvalidatePattern deletes keys matching an arbitrary pattern, used after directory changes
func (s *CacheInvalidationService) InvalidatePattern(ctx context.Context, pattern string) error {
	if err := s.cache.DeletePattern(ctx, pattern); err != nil {
		return fmt.Errorf("failed to invalidate pattern %s: %w", pattern, err)
	}
	log.Info().Str("pattern", pattern).Msg("Invalidated cache pattern")
	return nil
}
