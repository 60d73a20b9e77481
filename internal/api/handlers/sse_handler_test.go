package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LordWorm1996/DormNet/internal/adapters/events"
	"github.com/LordWorm1996/DormNet/internal/api/handlers"
	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
)

func sampleEvent(applianceID string) *entities.ReservationEvent {
	start := time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC)
	return entities.NewReservationEvent(entities.ReservationEventCreated, &entities.Reservation{
		ID:          "r-1",
		ApplianceID: applianceID,
		UserID:      "u-1",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
	})
}

func TestSSEHandler_StreamApplianceUpdates(t *testing.T) {
	t.Run("streams appliance events", func(t *testing.T) {
		bus := events.NewMemoryEventBus()
		defer bus.Close()
		handler := handlers.NewSSEHandler(bus)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		req := httptest.NewRequest(http.MethodGet, "/api/stream/appliances/washer-1", nil).WithContext(ctx)
		req.SetPathValue("id", "washer-1")
		w := httptest.NewRecorder()

		done := make(chan struct{})
		go func() {
			handler.StreamApplianceUpdates(w, req)
			close(done)
		}()

		require.Eventually(t, func() bool { return handler.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

		require.NoError(t, bus.Publish(context.Background(), providers.GetApplianceChannel("dryer-1"), sampleEvent("dryer-1")))
		require.NoError(t, bus.Publish(context.Background(), providers.GetApplianceChannel("washer-1"), sampleEvent("washer-1")))
		time.Sleep(100 * time.Millisecond)

		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handler did not exit after cancel")
		}

		result := w.Result()
		assert.Equal(t, "text/event-stream", result.Header.Get("Content-Type"))
		assert.Equal(t, "no-cache", result.Header.Get("Cache-Control"))

		body := w.Body.String()
		assert.True(t, strings.HasPrefix(body, "retry: 3000\n\n"))
		assert.Contains(t, body, "event: connected\n")
		assert.Contains(t, body, `"applianceId":"washer-1"`)
		assert.Contains(t, body, "event: reservation.created\n")
		assert.Regexp(t, `id: [0-9a-f-]{36}\nevent: reservation.created`, body)
		assert.NotContains(t, body, `"applianceId":"dryer-1"`)
		assert.Equal(t, 0, handler.GetClientCount())
	})

	t.Run("missing appliance id", func(t *testing.T) {
		handler := handlers.NewSSEHandler(events.NewMemoryEventBus())
		w := httptest.NewRecorder()
		handler.StreamApplianceUpdates(w, httptest.NewRequest(http.MethodGet, "/api/stream/appliances/", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSSEHandler_StreamReservationUpdates(t *testing.T) {
	bus := events.NewMemoryEventBus()
	defer bus.Close()
	handler := handlers.NewSSEHandler(bus)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/stream/reservations", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.StreamReservationUpdates(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return handler.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)
	event := sampleEvent("dryer-1")
	for _, channel := range providers.ChannelsFor(event) {
		require.NoError(t, bus.Publish(context.Background(), channel, event))
	}
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 1, strings.Count(w.Body.String(), "event: reservation.created\n"))
}

func TestWebSocketHandler_StreamReservations(t *testing.T) {
	bus := events.NewMemoryEventBus()
	defer bus.Close()
	handler := handlers.NewWebSocketHandler(bus, nil)

	server := httptest.NewServer(http.HandlerFunc(handler.StreamReservations))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws/reservations?applianceId=washer-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The subscription is set up after the upgrade, so keep publishing until one arrives
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = bus.Publish(context.Background(), providers.GetApplianceChannel("washer-1"), sampleEvent("washer-1"))
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got entities.ReservationEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, entities.ReservationEventCreated, got.Type)
	assert.Equal(t, "washer-1", got.ApplianceID)
	assert.Equal(t, "r-1", got.ReservationID)
}

func TestWebSocketHandler_RequiresUpgrade(t *testing.T) {
	handler := handlers.NewWebSocketHandler(events.NewMemoryEventBus(), nil)
	w := httptest.NewRecorder()
	handler.StreamReservations(w, httptest.NewRequest(http.MethodGet, "/api/ws/reservations", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
