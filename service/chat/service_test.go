package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ezmad-Ze/chat-app/service/auth"
	"github.com/Ezmad-Ze/chat-app/service/fanout"
	"github.com/Ezmad-Ze/chat-app/service/storage"
	errs "github.com/Ezmad-Ze/chat-app/tools/errs"
)

type receivedFrame struct {
	Event string         `json:"event"`
	ID    string         `json:"id"`
	Data  map[string]any `json:"data"`
}

func newTestService(t *testing.T, broker fanout.Broker, store storage.Store) *Service {
	t.Helper()
	svc := NewService(DefaultLimits(), store, broker, NewDelivery(2, 64))
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(svc.Close)
	return svc
}

func newTestClient(svc *Service, userID string) *Client {
	c := NewClient("conn-"+userID, auth.Identity{
		UserID:      userID,
		Email:       userID + "@example.com",
		DisplayName: userID,
	}, nil, 64, 0)
	svc.Register(c)
	return c
}

// awaitEvent reads frames off the client's send queue until one matches
// the wanted event name.
func awaitEvent(t *testing.T, c *Client, event string) receivedFrame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-c.Send:
			var f receivedFrame
			require.NoError(t, json.Unmarshal(raw, &f))
			if f.Event == event {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", event)
		}
	}
}

// collectEvents drains frames for a fixed window and returns those
// matching the event name.
func collectEvents(c *Client, event string, window time.Duration) []receivedFrame {
	var out []receivedFrame
	deadline := time.After(window)
	for {
		select {
		case raw := <-c.Send:
			var f receivedFrame
			if json.Unmarshal(raw, &f) == nil && f.Event == event {
				out = append(out, f)
			}
		case <-deadline:
			return out
		}
	}
}

// brokenSubBroker fails room-channel subscriptions while the global channel
// keeps working; onRoomSubscribe runs inside the failing call so tests can
// model a second join landing while the subscribe is in flight.
type brokenSubBroker struct {
	*fanout.MemoryBroker
	failRoomSubs    bool
	onRoomSubscribe func()
}

func (b *brokenSubBroker) Subscribe(ctx context.Context, channel string, h fanout.Handler) (fanout.Subscription, error) {
	if b.failRoomSubs && strings.HasPrefix(channel, fanout.RoomChannel("")) {
		if b.onRoomSubscribe != nil {
			b.onRoomSubscribe()
		}
		return nil, errors.New("broker unavailable")
	}
	return b.MemoryBroker.Subscribe(ctx, channel, h)
}

func TestJoinRoomSubscribeFailureClearsMembership(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	broker := &brokenSubBroker{MemoryBroker: fanout.NewMemoryBroker(), failRoomSubs: true}
	svc := newTestService(t, broker, store)
	room, err := store.CreateRoom(ctx, "general")
	require.NoError(t, err)

	joiner := newTestClient(svc, "joiner")
	racer := newTestClient(svc, "racer")
	broker.onRoomSubscribe = func() {
		// lands between the membership insert and the subscribe failure
		svc.rooms.Add(room.ID, racer)
	}

	_, err = svc.JoinRoom(ctx, joiner, room.ID)
	require.ErrorIs(t, err, errs.ErrInternal)

	// nobody may stay a member of a room with no live feed
	require.Empty(t, svc.rooms.Members(room.ID))
	require.False(t, svc.rooms.IsMember(room.ID, joiner))
	require.False(t, svc.rooms.IsMember(room.ID, racer))

	// once the broker recovers, the room is joinable again
	broker.failRoomSubs = false
	broker.onRoomSubscribe = nil
	_, err = svc.JoinRoom(ctx, joiner, room.ID)
	require.NoError(t, err)
	require.Len(t, svc.rooms.Members(room.ID), 1)
}

func TestCloseDetachesRoomSubscriptions(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	broker := fanout.NewMemoryBroker()
	svc := NewService(DefaultLimits(), store, broker, NewDelivery(1, 16))
	require.NoError(t, svc.Start(ctx))

	room, err := store.CreateRoom(ctx, "general")
	require.NoError(t, err)
	c := newTestClient(svc, "u1")
	_, err = svc.JoinRoom(ctx, c, room.ID)
	require.NoError(t, err)

	svc.Close()

	// a late event must find no subscription, not a closed delivery shard
	require.NotPanics(t, func() {
		require.NoError(t, broker.Publish(ctx, fanout.RoomChannel(room.ID), []byte("late")))
	})
}

func TestJoinRoomUnknownRoom(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, fanout.NewMemoryBroker(), storage.NewMemoryStore())
	c := newTestClient(svc, "u1")

	_, err := svc.JoinRoom(ctx, c, "missing")
	require.ErrorIs(t, err, errs.ErrRoomNotFound)
}

func TestJoinRoomIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := newTestService(t, fanout.NewMemoryBroker(), store)
	room, err := store.CreateRoom(ctx, "general")
	require.NoError(t, err)

	watcher := newTestClient(svc, "watcher")
	_, err = svc.JoinRoom(ctx, watcher, room.ID)
	require.NoError(t, err)

	joiner := newTestClient(svc, "joiner")
	_, err = svc.JoinRoom(ctx, joiner, room.ID)
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, joiner, room.ID)
	require.NoError(t, err, "re-join is a no-op success")

	require.Len(t, svc.rooms.Members(room.ID), 2, "exactly one membership entry per connection")

	joined := collectEvents(watcher, EventUserJoined, 300*time.Millisecond)
	var forJoiner int
	for _, f := range joined {
		user, _ := f.Data["user"].(map[string]any)
		if user != nil && user["userId"] == "joiner" {
			forJoiner++
		}
	}
	require.Equal(t, 1, forJoiner, "no duplicate joined presence broadcast")
}

func TestSendMessageDeliveredToRoomMembers(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := newTestService(t, fanout.NewMemoryBroker(), store)
	room, err := store.CreateRoom(ctx, "general")
	require.NoError(t, err)

	sender := newTestClient(svc, "alice")
	receiver := newTestClient(svc, "bob")
	_, err = svc.JoinRoom(ctx, sender, room.ID)
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, receiver, room.ID)
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, sender, room.ID, "hi")
	require.NoError(t, err)
	require.Equal(t, "hi", msg.Content)
	require.Equal(t, "alice", msg.AuthorID)

	f := awaitEvent(t, receiver, EventMessage)
	require.Equal(t, "hi", f.Data["content"])
	require.Equal(t, "alice", f.Data["authorId"])
	require.Equal(t, room.ID, f.Data["roomId"])

	// the sender gets its own copy through the same channel
	f = awaitEvent(t, sender, EventMessage)
	require.Equal(t, "hi", f.Data["content"])
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := newTestService(t, fanout.NewMemoryBroker(), store)
	room, err := store.CreateRoom(ctx, "general")
	require.NoError(t, err)
	c := newTestClient(svc, "u1")

	_, err = svc.SendMessage(ctx, c, room.ID, "   ")
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Contains(t, err.Error(), "empty")

	_, err = svc.SendMessage(ctx, c, room.ID, strings.Repeat("x", 501))
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Contains(t, err.Error(), "500")

	_, err = svc.SendMessage(ctx, c, "missing", "hello")
	require.ErrorIs(t, err, errs.ErrRoomNotFound)

	// trimmed content at the bound is fine
	_, err = svc.SendMessage(ctx, c, room.ID, "  "+strings.Repeat("y", 500)+"  ")
	require.NoError(t, err)
}

func TestSendMessageUnauthenticated(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := newTestService(t, fanout.NewMemoryBroker(), store)
	room, err := store.CreateRoom(ctx, "general")
	require.NoError(t, err)

	anon := NewClient("conn-anon", auth.Identity{}, nil, 16, 0)
	svc.Register(anon)

	_, err = svc.SendMessage(ctx, anon, room.ID, "hi")
	require.ErrorIs(t, err, errs.ErrUnauthenticated)

	msgs, err := store.ListMessages(ctx, room.ID)
	require.NoError(t, err)
	require.Empty(t, msgs, "nothing persisted for an unauthenticated send")
}

func TestCreateRoomNameBounds(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, fanout.NewMemoryBroker(), storage.NewMemoryStore())
	c := newTestClient(svc, "u1")

	_, err := svc.CreateRoom(ctx, c, "Ge")
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Contains(t, err.Error(), "3 characters")

	_, err = svc.CreateRoom(ctx, c, strings.Repeat("n", 51))
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Contains(t, err.Error(), "50")

	room, err := svc.CreateRoom(ctx, c, "General")
	require.NoError(t, err)
	require.Equal(t, "General", room.Name)
}

func TestCreateRoomConflict(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, fanout.NewMemoryBroker(), storage.NewMemoryStore())
	c := newTestClient(svc, "u1")

	_, err := svc.CreateRoom(ctx, c, "general")
	require.NoError(t, err)
	_, err = svc.CreateRoom(ctx, c, "general")
	require.ErrorIs(t, err, errs.ErrRoomExists)
}

func TestCreateRoomNotifiesAllConnections(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, fanout.NewMemoryBroker(), storage.NewMemoryStore())
	creator := newTestClient(svc, "u1")
	// bystander is connected but has joined no rooms
	bystander := newTestClient(svc, "u2")

	room, err := svc.CreateRoom(ctx, creator, "announcements")
	require.NoError(t, err)

	f := awaitEvent(t, bystander, EventRoomCreated)
	require.Equal(t, room.ID, f.Data["id"])
	require.Equal(t, "announcements", f.Data["name"])
}

func TestPerAuthorOrdering(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := newTestService(t, fanout.NewMemoryBroker(), store)
	room, err := store.CreateRoom(ctx, "general")
	require.NoError(t, err)

	sender := newTestClient(svc, "alice")
	receiver := newTestClient(svc, "bob")
	_, err = svc.JoinRoom(ctx, sender, room.ID)
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, receiver, room.ID)
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, sender, room.ID, "m1")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, sender, room.ID, "m2")
	require.NoError(t, err)

	first := awaitEvent(t, receiver, EventMessage)
	second := awaitEvent(t, receiver, EventMessage)
	require.Equal(t, "m1", first.Data["content"])
	require.Equal(t, "m2", second.Data["content"])
}

func TestHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := newTestService(t, fanout.NewMemoryBroker(), store)
	room, err := store.CreateRoom(ctx, "general")
	require.NoError(t, err)

	sender := newTestClient(svc, "alice")
	_, err = svc.JoinRoom(ctx, sender, room.ID)
	require.NoError(t, err)
	sent, err := svc.SendMessage(ctx, sender, room.ID, "for the record")
	require.NoError(t, err)

	late := newTestClient(svc, "bob")
	history, err := svc.JoinRoom(ctx, late, room.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, sent.ID, history[0].ID)
	require.Equal(t, "for the record", history[0].Content)
	require.Equal(t, "alice", history[0].AuthorID)
	require.Equal(t, room.ID, history[0].RoomID)
}

func TestFanoutAcrossGatewayInstances(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	broker := fanout.NewMemoryBroker()

	// two gateway instances sharing one broker stand in for two processes
	gwA := newTestService(t, broker, store)
	gwB := newTestService(t, broker, store)

	room, err := store.CreateRoom(ctx, "general")
	require.NoError(t, err)

	sender := newTestClient(gwA, "alice")
	remote := newTestClient(gwB, "bob")
	_, err = gwA.JoinRoom(ctx, sender, room.ID)
	require.NoError(t, err)
	_, err = gwB.JoinRoom(ctx, remote, room.ID)
	require.NoError(t, err)

	_, err = gwA.SendMessage(ctx, sender, room.ID, "across")
	require.NoError(t, err)

	f := awaitEvent(t, remote, EventMessage)
	require.Equal(t, "across", f.Data["content"])
	require.Equal(t, "alice", f.Data["authorId"])
}

func TestLeaveRoomEmitsPresenceOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := newTestService(t, fanout.NewMemoryBroker(), store)
	room, err := store.CreateRoom(ctx, "general")
	require.NoError(t, err)

	stayer := newTestClient(svc, "stayer")
	leaver := newTestClient(svc, "leaver")
	_, err = svc.JoinRoom(ctx, stayer, room.ID)
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, leaver, room.ID)
	require.NoError(t, err)

	require.NoError(t, svc.LeaveRoom(ctx, leaver, room.ID))
	require.NoError(t, svc.LeaveRoom(ctx, leaver, room.ID), "leaving again is a no-op")

	left := collectEvents(stayer, EventUserLeft, 300*time.Millisecond)
	require.Len(t, left, 1)
	user, _ := left[0].Data["user"].(map[string]any)
	require.Equal(t, "leaver", user["userId"])
}

func TestDisconnectCleanup(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := newTestService(t, fanout.NewMemoryBroker(), store)
	r1, err := store.CreateRoom(ctx, "one")
	require.NoError(t, err)
	r2, err := store.CreateRoom(ctx, "two")
	require.NoError(t, err)

	c := newTestClient(svc, "dropper")
	witness := newTestClient(svc, "witness")
	_, err = svc.JoinRoom(ctx, c, r1.ID)
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, c, r2.ID)
	require.NoError(t, err)
	_, err = svc.JoinRoom(ctx, witness, r1.ID)
	require.NoError(t, err)

	svc.DisconnectCleanup(ctx, c)

	require.False(t, svc.rooms.IsMember(r1.ID, c))
	require.False(t, svc.rooms.IsMember(r2.ID, c))
	require.Empty(t, svc.rooms.RoomsOf(c))
	require.Equal(t, 1, svc.registry.size(), "only the witness connection remains")

	f := awaitEvent(t, witness, EventUserLeft)
	user, _ := f.Data["user"].(map[string]any)
	require.Equal(t, "dropper", user["userId"])
}
