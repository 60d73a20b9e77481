package events

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
)

const subscriberBuffer = 100

// fanout tracks local subscribers per channel and broadcasts to them without blocking
type fanout struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.ReservationEvent]struct{}
}

func newFanout() *fanout {
	return &fanout{subscribers: make(map[string]map[chan *entities.ReservationEvent]struct{})}
}

// add registers a subscriber and reports whether it is the first on channel
func (f *fanout) add(channel string) (chan *entities.ReservationEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	first := false
	if f.subscribers[channel] == nil {
		f.subscribers[channel] = make(map[chan *entities.ReservationEvent]struct{})
		first = true
	}
	ch := make(chan *entities.ReservationEvent, subscriberBuffer)
	f.subscribers[channel][ch] = struct{}{}
	return ch, first
}

// remove closes one subscriber and reports whether channel has none left
func (f *fanout) remove(channel string, ch chan *entities.ReservationEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.subscribers[channel]
	if !ok {
		return false
	}
	if _, ok := subs[ch]; !ok {
		return false
	}
	delete(subs, ch)
	close(ch)

	if len(subs) == 0 {
		delete(f.subscribers, channel)
		return true
	}
	return false
}

// broadcast delivers event to every subscriber of channel, dropping it for full ones
func (f *fanout) broadcast(channel string, event *entities.ReservationEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for subscriber := range f.subscribers[channel] {
		select {
		case subscriber <- event:
		default:
			log.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("Subscriber channel full, skipping event")
		}
	}
}

// closeChannel closes every subscriber of channel
func (f *fanout) closeChannel(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for subscriber := range f.subscribers[channel] {
		close(subscriber)
	}
	delete(f.subscribers, channel)
}

func (f *fanout) channels() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.subscribers))
	for channel := range f.subscribers {
		out = append(out, channel)
	}
	return out
}

func (f *fanout) count(channel string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers[channel])
}
