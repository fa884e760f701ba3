package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	errs "github.com/Ezmad-Ze/chat-app/tools/errs"
	"github.com/Ezmad-Ze/chat-app/tools/ids"
)

const (
	collRooms    = "rooms"
	collMessages = "messages"
	collCounters = "counters"
)

type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	Timeout     time.Duration
}

// MongoStore persists rooms and messages in MongoDB. Room-name uniqueness
// is enforced with a unique index; message order is (createdAt, seq) with
// seq taken from a per-room counter document.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 20
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetConnectTimeout(cfg.Timeout)

	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	if err := client.Ping(cctx, nil); err != nil {
		return nil, errors.Wrap(err, "mongo ping")
	}

	s := &MongoStore{client: client, db: client.Database(cfg.Database)}
	if err := s.ensureIndexes(cctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collRooms).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Wrap(err, "ensure rooms name index")
	}
	_, err = s.db.Collection(collMessages).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		return errors.Wrap(err, "ensure messages order index")
	}
	return nil
}

func (s *MongoStore) CreateRoom(ctx context.Context, name string) (*Room, error) {
	room := &Room{
		ID:        ids.GenerateString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.Collection(collRooms).InsertOne(ctx, room); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errs.ErrRoomExists
		}
		return nil, errors.Wrap(err, "insert room")
	}
	return room, nil
}

func (s *MongoStore) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	err := s.db.Collection(collRooms).FindOne(ctx, bson.M{"_id": roomID}).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.ErrRoomNotFound
		}
		return nil, errors.Wrap(err, "find room")
	}
	return &room, nil
}

func (s *MongoStore) ListRooms(ctx context.Context) ([]Room, error) {
	cur, err := s.db.Collection(collRooms).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list rooms")
	}
	defer cur.Close(ctx)

	var rooms []Room
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, errors.Wrap(err, "decode rooms")
	}
	return rooms, nil
}

func (s *MongoStore) CreateMessage(ctx context.Context, roomID, authorID, content string) (*Message, error) {
	seq, err := s.nextSeq(ctx, roomID)
	if err != nil {
		return nil, err
	}
	msg := &Message{
		ID:        ids.GenerateString(),
		RoomID:    roomID,
		AuthorID:  authorID,
		Content:   content,
		Seq:       seq,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.Collection(collMessages).InsertOne(ctx, msg); err != nil {
		return nil, errors.Wrap(err, "insert message")
	}
	return msg, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, roomID string) ([]Message, error) {
	cur, err := s.db.Collection(collMessages).Find(ctx, bson.M{"roomId": roomID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "seq", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer cur.Close(ctx)

	var msgs []Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, errors.Wrap(err, "decode messages")
	}
	return msgs, nil
}

// nextSeq bumps the per-room counter document and returns the new value.
// FindOneAndUpdate with upsert keeps this atomic across gateway processes.
func (s *MongoStore) nextSeq(ctx context.Context, roomID string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(collCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": "room:" + roomID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, errors.Wrap(err, "next seq")
	}
	return doc.Seq, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
