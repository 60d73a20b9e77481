package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/domain/providers"
	apperrors "github.com/LordWorm1996/DormNet/pkg/errors"
)

const (
	sseHeartbeatInterval = 30 * time.Second
	// reconnect delay hint for EventSource clients
	sseRetryMillis = 3000
)

// SSEHandler streams reservation events as Server-Sent Events
type SSEHandler struct {
	eventBus  providers.EventBus
	heartbeat time.Duration

	mu      sync.Mutex
	clients map[string]int
}

func NewSSEHandler(eventBus providers.EventBus) *SSEHandler {
	return &SSEHandler{
		eventBus:  eventBus,
		heartbeat: sseHeartbeatInterval,
		clients:   make(map[string]int),
	}
}

// StreamApplianceUpdates handles GET /api/stream/appliances/{id}
func (h *SSEHandler) StreamApplianceUpdates(w http.ResponseWriter, r *http.Request) {
	applianceID := r.PathValue("id")
	if applianceID == "" {
		respondWithError(w, http.StatusBadRequest, apperrors.ErrorTypeValidation, "appliance ID is required")
		return
	}
	h.stream(w, r, providers.GetApplianceChannel(applianceID), map[string]interface{}{"applianceId": applianceID})
}

// StreamReservationUpdates handles GET /api/stream/reservations
func (h *SSEHandler) StreamReservationUpdates(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, providers.EventChannelReservationUpdates, map[string]interface{}{})
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, channel string, hello map[string]interface{}) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, apperrors.ErrorTypeInternal, "streaming not supported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The bus closes events once ctx is done
	events, err := h.eventBus.Subscribe(ctx, channel)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("Failed to subscribe to channel")
		respondWithError(w, http.StatusServiceUnavailable, apperrors.ErrorTypeExternal, "event stream unavailable")
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	h.track(channel, 1)
	defer h.track(channel, -1)

	fmt.Fprintf(w, "retry: %d\n\n", sseRetryMillis)
	hello["timestamp"] = time.Now()
	writeSSE(w, "", "connected", hello)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("channel", channel).Msg("Client disconnected from stream")
			return
		case <-heartbeat.C:
			writeSSE(w, "", "heartbeat", map[string]interface{}{"timestamp": time.Now()})
		case event, ok := <-events:
			if !ok {
				return
			}
			writeSSE(w, event.ID, string(event.Type), event)
		}
		flusher.Flush()
	}
}

func (h *SSEHandler) track(channel string, delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[channel] += delta
	if h.clients[channel] <= 0 {
		delete(h.clients, channel)
	}
}

// writeSSE writes one frame; id is omitted when empty
func writeSSE(w io.Writer, id, eventType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("Failed to marshal event data")
		return
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
}

// GetClientCount returns the number of connected stream clients
func (h *SSEHandler) GetClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for _, n := range h.clients {
		total += n
	}
	return total
}
