package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/rabbitmq"
)

// AMQPEventBus implements EventBus over a RabbitMQ topic exchange.
// Each bus channel is a routing key; every subscribing process binds its own
// exclusive queue so all instances see every event.
type AMQPEventBus struct {
	client   *rabbitmq.Client
	subs     *fanout
	mu       sync.Mutex
	channels map[string]*amqp.Channel
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewAMQPEventBus creates a RabbitMQ-backed event bus on a connected client
func NewAMQPEventBus(client *rabbitmq.Client) providers.EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &AMQPEventBus{
		client:   client,
		subs:     newFanout(),
		channels: make(map[string]*amqp.Channel),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Publish publishes an event with the bus channel as routing key
func (b *AMQPEventBus) Publish(ctx context.Context, channel string, event *entities.ReservationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("event serialization error: %w", err)
	}

	err = b.client.Publish(channel, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		MessageId:   event.ID,
		Timestamp:   event.Timestamp,
		Type:        string(event.Type),
		Headers: amqp.Table{
			"reservation_id": event.ReservationID,
			"appliance_id":   event.ApplianceID,
		},
	})
	if err != nil {
		return fmt.Errorf("event publish error: %w", err)
	}

	log.Debug().Str("routing_key", channel).Str("type", string(event.Type)).Msg("Event published")
	return nil
}

// Subscribe binds an exclusive queue to channel and forwards deliveries until ctx is done
func (b *AMQPEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.ReservationEvent, error) {
	b.mu.Lock()
	if _, exists := b.channels[channel]; !exists {
		if err := b.consume(channel); err != nil {
			b.mu.Unlock()
			return nil, err
		}
	}
	eventChan, _ := b.subs.add(channel)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.removeSubscriber(channel, eventChan)
	}()

	return eventChan, nil
}

// consume must be called with b.mu held
func (b *AMQPEventBus) consume(routingKey string) error {
	ch, err := b.client.OpenChannel()
	if err != nil {
		return err
	}

	queue, err := ch.QueueDeclare(
		"",    // name, server generated
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("queue declare error: %w", err)
	}

	if err := ch.QueueBind(queue.Name, routingKey, b.client.Exchange(), false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("queue bind error (%s): %w", routingKey, err)
	}

	deliveries, err := ch.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume start error: %w", err)
	}

	b.channels[routingKey] = ch
	go b.receive(routingKey, deliveries)
	return nil
}

func (b *AMQPEventBus) receive(routingKey string, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			var event entities.ReservationEvent
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				log.Warn().Err(err).Str("routing_key", routingKey).Msg("Event deserialize error")
				continue
			}
			b.subs.broadcast(routingKey, &event)
		}
	}
}

func (b *AMQPEventBus) removeSubscriber(channel string, eventChan chan *entities.ReservationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs.remove(channel, eventChan) {
		b.closeConsumer(channel)
	}
}

// closeConsumer must be called with b.mu held
func (b *AMQPEventBus) closeConsumer(channel string) error {
	ch, ok := b.channels[channel]
	if !ok {
		return nil
	}
	delete(b.channels, channel)
	return ch.Close()
}

// Unsubscribe stops consuming channel and closes its subscribers
func (b *AMQPEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs.closeChannel(channel)
	return b.closeConsumer(channel)
}

// Close stops all consumers. The underlying client is closed by its owner.
func (b *AMQPEventBus) Close() error {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for channel := range b.channels {
		b.subs.closeChannel(channel)
		if err := b.closeConsumer(channel); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
