package chat

import (
	"sync"

	"github.com/Ezmad-Ze/chat-app/service/fanout"
)

// RoomManager holds this process's local room membership: roomID -> the
// clients subscribed here. It is one tier of a two-tier scheme; the other
// tier is the broker subscription kept per room, held while at least one
// local member remains. Local membership is authoritative for local
// delivery only; cross-process delivery goes through the broker channel.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Client
	subs  map[string]fanout.Subscription
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[string]map[string]*Client),
		subs:  make(map[string]fanout.Subscription),
	}
}

// Add records c under roomID. added is false when the client was already a
// member (idempotent re-join); first is true when this membership is the
// room's first on this process, in which case the caller must establish
// the broker subscription and hand it to SetSubscription.
func (m *RoomManager) Add(roomID string, c *Client) (first, added bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.rooms[roomID]
	if members == nil {
		members = make(map[string]*Client)
		m.rooms[roomID] = members
	}
	if _, exists := members[c.ConnID]; exists {
		return false, false
	}
	members[c.ConnID] = c
	return len(members) == 1, true
}

// SetSubscription attaches the broker subscription for roomID. Returns
// false if the room lost all local members in the meantime; the caller
// must then unsubscribe itself.
func (m *RoomManager) SetSubscription(roomID string, sub fanout.Subscription) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.rooms[roomID]) == 0 {
		return false
	}
	m.subs[roomID] = sub
	return true
}

// Remove drops c from roomID. removed reports whether a membership entry
// actually existed; when the last local member goes, the room's broker
// subscription is detached and returned for the caller to unsubscribe.
func (m *RoomManager) Remove(roomID string, c *Client) (removed bool, sub fanout.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(roomID, c)
}

func (m *RoomManager) removeLocked(roomID string, c *Client) (bool, fanout.Subscription) {
	members := m.rooms[roomID]
	if members == nil {
		return false, nil
	}
	if _, exists := members[c.ConnID]; !exists {
		return false, nil
	}
	delete(members, c.ConnID)
	if len(members) > 0 {
		return true, nil
	}
	delete(m.rooms, roomID)
	sub := m.subs[roomID]
	delete(m.subs, roomID)
	return true, sub
}

// Removal is one room a disconnecting client was dropped from.
type Removal struct {
	RoomID string
	Sub    fanout.Subscription // non-nil when the local subscription must go too
}

// RemoveAll drops c from every room it had joined; invoked unconditionally
// on transport close so no membership entry can dangle.
func (m *RoomManager) RemoveAll(c *Client) []Removal {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Removal
	for roomID, members := range m.rooms {
		if _, exists := members[c.ConnID]; !exists {
			continue
		}
		_, sub := m.removeLocked(roomID, c)
		out = append(out, Removal{RoomID: roomID, Sub: sub})
	}
	return out
}

// Drop removes every local membership for roomID at once and detaches its
// subscription, if any. Used when the room's broker subscription cannot be
// established: members of a room with no live feed must be cleared so they
// re-join instead of sitting on a dead room.
func (m *RoomManager) Drop(roomID string) ([]*Client, fanout.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.rooms[roomID]
	clients := make([]*Client, 0, len(members))
	for _, c := range members {
		clients = append(clients, c)
	}
	delete(m.rooms, roomID)
	sub := m.subs[roomID]
	delete(m.subs, roomID)
	return clients, sub
}

// DetachSubs removes and returns every room subscription; memberships stay.
// Used on shutdown so the broker stops feeding events before the delivery
// stage goes away.
func (m *RoomManager) DetachSubs() []fanout.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]fanout.Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, sub)
	}
	m.subs = make(map[string]fanout.Subscription)
	return out
}

// Members returns the clients subscribed to roomID on this process.
func (m *RoomManager) Members(roomID string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.rooms[roomID]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// IsMember reports whether c is currently subscribed to roomID here.
func (m *RoomManager) IsMember(roomID string, c *Client) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.rooms[roomID]
	if members == nil {
		return false
	}
	_, ok := members[c.ConnID]
	return ok
}

// RoomsOf lists the rooms c has joined on this process.
func (m *RoomManager) RoomsOf(c *Client) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for roomID, members := range m.rooms {
		if _, ok := members[c.ConnID]; ok {
			out = append(out, roomID)
		}
	}
	return out
}
