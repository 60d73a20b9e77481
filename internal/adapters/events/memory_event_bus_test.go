package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
)

func testEvent() *entities.ReservationEvent {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return entities.NewReservationEvent(entities.ReservationEventCreated, &entities.Reservation{
		ID:          "r-1",
		ApplianceID: "washer-1",
		UserID:      "u-1",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Status:      entities.ReservationStatusActive,
	})
}

func receive(t *testing.T, ch <-chan *entities.ReservationEvent) *entities.ReservationEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryEventBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all, err := bus.Subscribe(ctx, providers.EventChannelReservationUpdates)
	require.NoError(t, err)
	washer, err := bus.Subscribe(ctx, providers.GetApplianceChannel("washer-1"))
	require.NoError(t, err)
	dryer, err := bus.Subscribe(ctx, providers.GetApplianceChannel("dryer-1"))
	require.NoError(t, err)

	event := testEvent()
	for _, channel := range providers.ChannelsFor(event) {
		require.NoError(t, bus.Publish(ctx, channel, event))
	}

	assert.Equal(t, "r-1", receive(t, all).ReservationID)
	assert.Equal(t, "r-1", receive(t, washer).ReservationID)

	select {
	case ev := <-dryer:
		t.Fatalf("unexpected event on other appliance channel: %+v", ev)
	default:
	}
}

func TestMemoryEventBus_ContextCancelClosesChannel(t *testing.T) {
	bus := NewMemoryEventBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, providers.EventChannelReservationUpdates)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed after cancel")
	}
	assert.Equal(t, 0, bus.subs.count(providers.EventChannelReservationUpdates))
}

func TestMemoryEventBus_CloseClosesAll(t *testing.T) {
	bus := NewMemoryEventBus()

	a, err := bus.Subscribe(context.Background(), "a")
	require.NoError(t, err)
	b, err := bus.Subscribe(context.Background(), "b")
	require.NoError(t, err)

	require.NoError(t, bus.Close())

	_, okA := <-a
	_, okB := <-b
	assert.False(t, okA)
	assert.False(t, okB)

	// publishing after close is a no-op
	assert.NoError(t, bus.Publish(context.Background(), "a", testEvent()))
}

func TestFanout_DropsWhenSubscriberFull(t *testing.T) {
	f := newFanout()
	ch, first := f.add("c")
	assert.True(t, first)
	_, first = f.add("c")
	assert.False(t, first)

	for i := 0; i < subscriberBuffer+10; i++ {
		f.broadcast("c", testEvent())
	}
	assert.Len(t, ch, subscriberBuffer)
}
