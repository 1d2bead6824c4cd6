package inbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultCollection is the collection used by NewMongoStorage.
const DefaultCollection = "inbox"

// MongoStorage stores messages in a MongoDB collection keyed by message ID.
type MongoStorage struct {
	coll *mongo.Collection
}

func NewMongoStorage(db *mongo.Database) *MongoStorage {
	return &MongoStorage{coll: db.Collection(DefaultCollection)}
}

// EnsureIndexes creates the per-user listing index.
func (s *MongoStorage) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "read", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("inbox: create indexes: %w", err)
	}
	return nil
}

func (s *MongoStorage) Create(ctx context.Context, msg Message) error {
	if msg.ID == "" || msg.UserID == "" {
		return ErrInvalidMessage
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	if _, err := s.coll.InsertOne(ctx, msg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrMessageExists
		}
		return fmt.Errorf("inbox: insert: %w", err)
	}
	return nil
}

func (s *MongoStorage) Get(ctx context.Context, userID, id string) (*Message, error) {
	var msg Message
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}, {Key: "userId", Value: userID}}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inbox: get: %w", err)
	}
	return &msg, nil
}

func (s *MongoStorage) List(ctx context.Context, userID string, opts ListOptions) ([]Message, error) {
	filter := bson.D{{Key: "userId", Value: userID}}
	if opts.OnlyUnread {
		filter = append(filter, bson.E{Key: "read", Value: false})
	}

	find := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(opts.Offset))
	if opts.Limit > 0 {
		find.SetLimit(int64(opts.Limit))
	}

	cur, err := s.coll.Find(ctx, filter, find)
	if err != nil {
		return nil, fmt.Errorf("inbox: list: %w", err)
	}
	out := []Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("inbox: decode: %w", err)
	}
	return out, nil
}

func (s *MongoStorage) MarkRead(ctx context.Context, userID string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.markRead(ctx, bson.D{
		{Key: "userId", Value: userID},
		{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}},
		{Key: "read", Value: false},
	})
}

func (s *MongoStorage) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.markRead(ctx, bson.D{{Key: "userId", Value: userID}, {Key: "read", Value: false}})
}

func (s *MongoStorage) markRead(ctx context.Context, filter bson.D) (int, error) {
	res, err := s.coll.UpdateMany(ctx, filter, bson.D{{Key: "$set", Value: bson.D{
		{Key: "read", Value: true},
		{Key: "readAt", Value: time.Now().UTC()},
	}}})
	if err != nil {
		return 0, fmt.Errorf("inbox: mark read: %w", err)
	}
	return int(res.ModifiedCount), nil
}

func (s *MongoStorage) CountUnread(ctx context.Context, userID string) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "userId", Value: userID}, {Key: "read", Value: false}})
	if err != nil {
		return 0, fmt.Errorf("inbox: count unread: %w", err)
	}
	return int(n), nil
}
