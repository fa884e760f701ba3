package fanout

import "context"

// The fan-out layer bridges local room broadcasts between gateway
// processes: an event published on process A reaches subscribers held by
// process B through a shared broker. Delivery is best effort, at least
// once, ordered within a channel from a single publisher. Nothing is
// buffered or replayed; the message store is the source of truth for
// history.
//
// Channels are scoped per room for messages and presence, plus one global
// channel for room-created notifications. The publishing process receives
// its own events through its subscription like any other process, so there
// is a single delivery path.

const (
	roomChannelPrefix = "chat:room:"

	// GlobalChannel carries room-created notifications to every process.
	GlobalChannel = "chat:rooms"
)

// RoomChannel returns the broker channel for a room's live events.
func RoomChannel(roomID string) string {
	return roomChannelPrefix + roomID
}

// Handler receives a payload published on a channel. Handlers must not
// block: they run on the broker's delivery goroutine.
type Handler func(channel string, payload []byte)

// Subscription is an active channel subscription.
type Subscription interface {
	Unsubscribe() error
}

// Broker is the shared publish/subscribe channel between processes.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error)
	Close() error
}
