package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
	redisclient "github.com/LordWorm1996/DormNet/internal/infrastructure/clients/redis"
)

// RedisEventBus carries reservation events over Redis pub/sub.
// One PubSub connection is shared by every bus channel this process listens on.
type RedisEventBus struct {
	client *redisclient.Client
	subs   *fanout

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
}

// NewRedisEventBus creates a Redis-backed event bus
func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	return &RedisEventBus{client: client, subs: newFanout()}
}

func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.ReservationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := b.client.Client().Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().Str("channel", channel).Str("event_id", event.ID).Int64("receivers", receivers).Msg("Published event")
	return nil
}

// Subscribe registers a local subscriber and joins the Redis channel on first use.
// The returned channel is closed once ctx is done.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.ReservationEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus closed")
	}

	eventChan, first := b.subs.add(channel)
	if first {
		if err := b.join(ctx, channel); err != nil {
			b.subs.remove(channel, eventChan)
			return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}
	}

	go func() {
		<-ctx.Done()
		b.leave(channel, eventChan)
	}()

	return eventChan, nil
}

// join must be called with b.mu held
func (b *RedisEventBus) join(ctx context.Context, channel string) error {
	if b.pubsub == nil {
		pubsub := b.client.Client().Subscribe(ctx, channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return err
		}
		b.pubsub = pubsub
		go b.dispatch(pubsub)
		return nil
	}
	return b.pubsub.Subscribe(ctx, channel)
}

// dispatch routes every message on the shared connection to local subscribers
func (b *RedisEventBus) dispatch(pubsub *redis.PubSub) {
	for msg := range pubsub.Channel() {
		var event entities.ReservationEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropping malformed event")
			continue
		}
		b.subs.broadcast(msg.Channel, &event)
	}
}

func (b *RedisEventBus) leave(channel string, eventChan chan *entities.ReservationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.subs.remove(channel, eventChan) || b.pubsub == nil {
		return
	}
	if err := b.pubsub.Unsubscribe(context.Background(), channel); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("Failed to leave Redis channel")
	}
}

// Unsubscribe drops every local subscriber of channel
func (b *RedisEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs.closeChannel(channel)
	if b.pubsub == nil {
		return nil
	}
	return b.pubsub.Unsubscribe(ctx, channel)
}

func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, channel := range b.subs.channels() {
		b.subs.closeChannel(channel)
	}
	if b.pubsub != nil {
		if err := b.pubsub.Close(); err != nil {
			return fmt.Errorf("failed to close pubsub: %w", err)
		}
	}

	log.Info().Msg("Event bus closed")
	return nil
}
