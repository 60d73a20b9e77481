package events

import (
	"context"
	"sync"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
)

// MemoryEventBus delivers events within one process
type MemoryEventBus struct {
	subs   *fanout
	mu     sync.Mutex
	closed bool
}

// NewMemoryEventBus creates an in-process event bus
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{subs: newFanout()}
}

var _ providers.EventBus = (*MemoryEventBus)(nil)

// Publish delivers event to current subscribers of channel
func (b *MemoryEventBus) Publish(_ context.Context, channel string, event *entities.ReservationEvent) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil
	}
	b.subs.broadcast(channel, event)
	return nil
}

// Subscribe returns a channel that is closed when ctx is done
func (b *MemoryEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.ReservationEvent, error) {
	ch, _ := b.subs.add(channel)
	go func() {
		<-ctx.Done()
		b.subs.remove(channel, ch)
	}()
	return ch, nil
}

// Unsubscribe closes every subscriber of channel
func (b *MemoryEventBus) Unsubscribe(_ context.Context, channel string) error {
	b.subs.closeChannel(channel)
	return nil
}

// Close closes all subscriptions
func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	for _, channel := range b.subs.channels() {
		b.subs.closeChannel(channel)
	}
	return nil
}
