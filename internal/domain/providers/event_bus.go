package providers

import (
	"context"

	"github.com/cdx-ehr/billreview/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to
// bill lifecycle events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.BillEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.BillEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelBillUpdates is the channel for all bill updates
	EventChannelBillUpdates = "bills:updates"

	// EventChannelBillPrefix is the prefix for bill-specific channels
	EventChannelBillPrefix = "bills:"
)

// GetBillChannel returns the channel name for a specific bill
func GetBillChannel(billID string) string {
	return EventChannelBillPrefix + billID
}
