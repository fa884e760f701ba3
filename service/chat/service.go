package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Ezmad-Ze/chat-app/logger"
	"github.com/Ezmad-Ze/chat-app/service/fanout"
	"github.com/Ezmad-Ze/chat-app/service/storage"
	errs "github.com/Ezmad-Ze/chat-app/tools/errs"
)

// Limits are the externally configured validation bounds.
type Limits struct {
	RoomNameMin   int
	RoomNameMax   int
	MessageMaxLen int
}

func DefaultLimits() Limits {
	return Limits{RoomNameMin: 3, RoomNameMax: 50, MessageMaxLen: 500}
}

// Service implements the room operations on top of the store (truth for
// rooms and history) and the broker (live fan-out). All methods are safe
// for concurrent use from many connection goroutines; no call holds a
// cross-connection lock while doing I/O.
type Service struct {
	limits   Limits
	store    storage.Store
	broker   fanout.Broker
	rooms    *RoomManager
	registry *Registry
	delivery *Delivery

	globalSub fanout.Subscription
}

func NewService(limits Limits, store storage.Store, broker fanout.Broker, delivery *Delivery) *Service {
	if limits.RoomNameMin <= 0 {
		limits = DefaultLimits()
	}
	return &Service{
		limits:   limits,
		store:    store,
		broker:   broker,
		rooms:    NewRoomManager(),
		registry: NewRegistry(),
		delivery: delivery,
	}
}

// Start subscribes the process to the global channel so room-created
// notifications reach every connected client without polling.
func (s *Service) Start(ctx context.Context) error {
	sub, err := s.broker.Subscribe(ctx, fanout.GlobalChannel, s.onGlobalEvent)
	if err != nil {
		return err
	}
	s.globalSub = sub
	return nil
}

func (s *Service) Close() {
	if s.globalSub != nil {
		_ = s.globalSub.Unsubscribe()
	}
	// room subscriptions go first: the broker must stop feeding events
	// before the delivery shards close
	for _, sub := range s.rooms.DetachSubs() {
		_ = sub.Unsubscribe()
	}
	s.delivery.Close()
}

// Register makes c visible to global event delivery.
func (s *Service) Register(c *Client) { s.registry.add(c) }

// JoinRoom subscribes c to roomID and returns the history snapshot used to
// seed the client's view. Re-joining an already joined room is a no-op
// success: the snapshot is returned again, but no duplicate membership
// entry or presence broadcast is produced.
func (s *Service) JoinRoom(ctx context.Context, c *Client, roomID string) ([]storage.Message, error) {
	if !c.Authenticated() {
		return nil, errs.ErrUnauthenticated
	}
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	history, err := s.store.ListMessages(ctx, roomID)
	if err != nil {
		return nil, err
	}

	first, added := s.rooms.Add(roomID, c)
	if !added {
		return history, nil
	}
	if first {
		sub, err := s.broker.Subscribe(ctx, fanout.RoomChannel(roomID), s.onRoomEvent)
		if err != nil {
			// the whole room goes, not just c: anyone who joined while
			// the subscribe was in flight has no live feed either
			dropped, _ := s.rooms.Drop(roomID)
			if len(dropped) > 1 {
				logger.Warnf("[chat] dropped %d members of room %s after subscribe failure", len(dropped), roomID)
			}
			return nil, errs.ErrInternal.WithDetail("room subscription failed")
		}
		if !s.rooms.SetSubscription(roomID, sub) {
			// lost the race with the last leave; drop the orphan
			_ = sub.Unsubscribe()
		}
	}

	s.publishPresence(ctx, EventUserJoined, roomID, c)
	return history, nil
}

// LeaveRoom removes c from roomID. Leaving a room never fails: absence is
// a no-op, and only an actual removal emits the left presence event.
func (s *Service) LeaveRoom(ctx context.Context, c *Client, roomID string) error {
	removed, sub := s.rooms.Remove(roomID, c)
	if !removed {
		return nil
	}
	if sub != nil {
		_ = sub.Unsubscribe()
	}
	s.publishPresence(ctx, EventUserLeft, roomID, c)
	return nil
}

// CreateRoom validates the name, persists the room and notifies every
// process so connected clients can refresh their room lists.
func (s *Service) CreateRoom(ctx context.Context, c *Client, name string) (*storage.Room, error) {
	if !c.Authenticated() {
		return nil, errs.ErrUnauthenticated
	}
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < s.limits.RoomNameMin {
		return nil, errs.ErrValidation.WithDetail(
			fmt.Sprintf("room name must be at least %d characters long", s.limits.RoomNameMin))
	} else if n > s.limits.RoomNameMax {
		return nil, errs.ErrValidation.WithDetail(
			fmt.Sprintf("room name cannot exceed %d characters", s.limits.RoomNameMax))
	}

	room, err := s.store.CreateRoom(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.broker.Publish(ctx, fanout.GlobalChannel, EncodeEvent(EventRoomCreated, room)); err != nil {
		logger.Errorf("[chat] publish roomCreated room=%s: %v", room.ID, err)
	}
	return room, nil
}

// SendMessage validates and persists the message, then hands it to the
// fan-out layer. The sender receives its own copy through the room channel
// like every other member, so everyone observes the same order.
func (s *Service) SendMessage(ctx context.Context, c *Client, roomID, content string) (*storage.Message, error) {
	if !c.Authenticated() {
		return nil, errs.ErrUnauthenticated
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errs.ErrValidation.WithDetail("message cannot be empty")
	}
	if utf8.RuneCountInString(content) > s.limits.MessageMaxLen {
		return nil, errs.ErrValidation.WithDetail(
			fmt.Sprintf("message cannot exceed %d characters", s.limits.MessageMaxLen))
	}
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}

	msg, err := s.store.CreateMessage(ctx, roomID, c.Identity.UserID, content)
	if err != nil {
		return nil, err
	}
	if err := s.broker.Publish(ctx, fanout.RoomChannel(roomID), EncodeEvent(EventMessage, msg)); err != nil {
		// the message is persisted; delivery is best effort
		logger.Errorf("[chat] publish message room=%s: %v", roomID, err)
	}
	return msg, nil
}

// ListRooms exposes the room catalogue for the REST listing.
func (s *Service) ListRooms(ctx context.Context) ([]storage.Room, error) {
	return s.store.ListRooms(ctx)
}

// DisconnectCleanup runs unconditionally when a transport closes: the
// client leaves every room it had joined, presence is broadcast, and the
// connection disappears from the registry. In-flight sends it initiated
// are not cancelled.
func (s *Service) DisconnectCleanup(ctx context.Context, c *Client) {
	for _, rm := range s.rooms.RemoveAll(c) {
		if rm.Sub != nil {
			_ = rm.Sub.Unsubscribe()
		}
		s.publishPresence(ctx, EventUserLeft, rm.RoomID, c)
	}
	s.registry.remove(c)
}

func (s *Service) publishPresence(ctx context.Context, event, roomID string, c *Client) {
	payload := EncodeEvent(event, PresenceData{RoomID: roomID, User: c.Identity})
	if err := s.broker.Publish(ctx, fanout.RoomChannel(roomID), payload); err != nil {
		logger.Errorf("[chat] publish %s room=%s: %v", event, roomID, err)
	}
}

// onRoomEvent delivers a room channel payload to the room's local members.
func (s *Service) onRoomEvent(channel string, payload []byte) {
	roomID := strings.TrimPrefix(channel, fanout.RoomChannel(""))
	s.delivery.Broadcast(channel, s.rooms.Members(roomID), payload)
}

// onGlobalEvent delivers a global payload to every connection here.
func (s *Service) onGlobalEvent(channel string, payload []byte) {
	s.delivery.Broadcast(channel, s.registry.listAll(), payload)
}
