package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/LordWorm1996/DormNet/internal/adapters/cache"
	"github.com/LordWorm1996/DormNet/internal/adapters/events"
	"github.com/LordWorm1996/DormNet/internal/application/services"
	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
)

func seed(t *testing.T, c providers.CacheProvider, keys ...string) {
	t.Helper()
	for _, key := range keys {
		require.NoError(t, c.Set(context.Background(), key, []byte("data"), 300))
	}
}

func cached(c providers.CacheProvider, key string) bool {
	_, err := c.Get(context.Background(), key)
	return err == nil
}

func TestCacheInvalidationService_Start(t *testing.T) {
	c, err := cache.NewLRUAdapter(16)
	require.NoError(t, err)
	bus := new(MockEventBus)
	ch := make(chan *entities.ReservationEvent)
	bus.On("Subscribe", mock.Anything, providers.EventChannelReservationUpdates).Return((<-chan *entities.ReservationEvent)(ch), nil)

	service := services.NewCacheInvalidationService(c, bus)
	require.NoError(t, service.Start())
	service.Stop()
	bus.AssertExpectations(t)
}

func TestCacheInvalidationService_StartFails(t *testing.T) {
	c, err := cache.NewLRUAdapter(16)
	require.NoError(t, err)
	bus := new(MockEventBus)
	bus.On("Subscribe", mock.Anything, mock.Anything).Return(nil, errors.New("no broker"))

	service := services.NewCacheInvalidationService(c, bus)
	assert.Error(t, service.Start())
	service.Stop()
}

func TestCacheInvalidationService_HandleEvent(t *testing.T) {
	c, err := cache.NewLRUAdapter(16)
	require.NoError(t, err)
	bus := events.NewMemoryEventBus()
	defer bus.Close()

	service := services.NewCacheInvalidationService(c, bus)
	require.NoError(t, service.Start())
	defer service.Stop()

	seed(t, c,
		"http:cache:/api/calendar?view=week",
		"http:cache:/api/appliances",
		"http:cache:/api/bookings?startDate=2030-01-07",
		"appliance:washer-1",
	)

	event := entities.NewReservationEvent(entities.ReservationEventCreated, &entities.Reservation{ID: "r-1", ApplianceID: "washer-1"})
	require.NoError(t, bus.Publish(context.Background(), providers.EventChannelReservationUpdates, event))

	assert.Eventually(t, func() bool {
		return !cached(c, "http:cache:/api/calendar?view=week") &&
			!cached(c, "http:cache:/api/appliances") &&
			!cached(c, "http:cache:/api/bookings?startDate=2030-01-07")
	}, time.Second, 10*time.Millisecond)
	assert.True(t, cached(c, "appliance:washer-1"), "directory entries carry no reservation state")
}

func TestCacheInvalidationService_InvalidatePattern(t *testing.T) {
	c, err := cache.NewLRUAdapter(16)
	require.NoError(t, err)
	service := services.NewCacheInvalidationService(c, events.NewMemoryEventBus())

	seed(t, c, "appliance:washer-1", "appliances:list", "http:cache:/api/calendar")
	require.NoError(t, service.InvalidatePattern(context.Background(), "appliance*"))

	assert.False(t, cached(c, "appliance:washer-1"))
	assert.False(t, cached(c, "appliances:list"))
	assert.True(t, cached(c, "http:cache:/api/calendar"))
}
