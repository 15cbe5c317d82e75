package broker

import "context"

// Handler receives the raw payload of one broker notification. Handlers for
// a given group are invoked in publish order.
type Handler func(payload []byte)

// Subscription is a handle to one per-group subscription.
type Subscription interface {
	Close() error
}

// Broker is the shared append-log plus pub/sub primitive that decouples the
// producing process from the set of subscriber processes. Each group has one
// log stream and one notification channel.
type Broker interface {
	// Append writes an entry to the group's durable-ish log stream.
	Append(ctx context.Context, groupID string, payload []byte) error

	// Publish sends a notification to all current subscribers of the group.
	Publish(ctx context.Context, groupID string, payload []byte) error

	// Subscribe registers a handler for the group's notification channel.
	// Per-group publish order is preserved for a given subscription.
	Subscribe(ctx context.Context, groupID string, h Handler) (Subscription, error)

	Close() error
}
