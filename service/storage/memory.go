package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	errs "github.com/Ezmad-Ze/chat-app/tools/errs"
	"github.com/Ezmad-Ze/chat-app/tools/ids"
)

// MemoryStore is an in-process Store used in tests and local development.
// Same contracts as the Mongo store, including name uniqueness.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	byName   map[string]string // name -> roomID
	messages map[string][]Message
	seqs     map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*Room),
		byName:   make(map[string]string),
		messages: make(map[string][]Message),
		seqs:     make(map[string]int64),
	}
}

func (s *MemoryStore) CreateRoom(_ context.Context, name string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[name]; exists {
		return nil, errs.ErrRoomExists
	}
	room := &Room{
		ID:        ids.GenerateString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	s.rooms[room.ID] = room
	s.byName[name] = room.ID
	return room, nil
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, errs.ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (s *MemoryStore) ListRooms(_ context.Context) ([]Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, roomID, authorID, content string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seqs[roomID]++
	msg := Message{
		ID:        ids.GenerateString(),
		RoomID:    roomID,
		AuthorID:  authorID,
		Content:   content,
		Seq:       s.seqs[roomID],
		CreatedAt: time.Now().UTC(),
	}
	s.messages[roomID] = append(s.messages[roomID], msg)
	return &msg, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, roomID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.messages[roomID]
	out := make([]Message, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }
