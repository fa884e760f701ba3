package storage

import (
	"context"
	"time"
)

// Room is created on explicit request and never mutated afterwards.
type Room struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Message is immutable once created. Ordering within a room is by CreatedAt
// ascending with Seq breaking ties; Seq is assigned at persistence time and
// is monotonic per room.
type Message struct {
	ID        string    `bson:"_id" json:"id"`
	RoomID    string    `bson:"roomId" json:"roomId"`
	AuthorID  string    `bson:"authorId" json:"authorId"`
	Content   string    `bson:"content" json:"content"`
	Seq       int64     `bson:"seq" json:"seq"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// Store is the message store collaborator: rooms and ordered message
// history. It is the source of truth for history; the fan-out layer only
// carries live notifications.
//
// CreateRoom returns errs.ErrRoomExists on a duplicate name; room-name
// uniqueness is an explicit contract of the store, not an inferred error
// code. GetRoom returns errs.ErrRoomNotFound for an unknown id.
type Store interface {
	CreateRoom(ctx context.Context, name string) (*Room, error)
	GetRoom(ctx context.Context, roomID string) (*Room, error)
	ListRooms(ctx context.Context) ([]Room, error)

	CreateMessage(ctx context.Context, roomID, authorID, content string) (*Message, error)
	ListMessages(ctx context.Context, roomID string) ([]Message, error)

	Close(ctx context.Context) error
}
