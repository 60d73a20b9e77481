package providers

import (
	"context"

	"github.com/LordWorm1996/DormNet/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to reservation events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.ReservationEvent) error

	// Subscribe subscribes to events on a channel until ctx is done
	Subscribe(ctx context.Context, channel string) (<-chan *entities.ReservationEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelReservationUpdates carries every reservation event
	EventChannelReservationUpdates = "reservations:updates"

	// EventChannelAppliancePrefix is the prefix for appliance-specific channels
	EventChannelAppliancePrefix = "appliance:"
)

// GetApplianceChannel returns the channel name for a specific appliance
func GetApplianceChannel(applianceID string) string {
	return EventChannelAppliancePrefix + applianceID
}

// ChannelsFor returns every channel an event must be delivered on
func ChannelsFor(event *entities.ReservationEvent) []string {
	return []string{EventChannelReservationUpdates, GetApplianceChannel(event.ApplianceID)}
}
