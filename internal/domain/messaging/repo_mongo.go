package messaging

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/clinicore/clinicore/internal/platform/storage"
)

type messageRepoMongo struct {
	coll *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) MessageRepository {
	return &messageRepoMongo{coll: db.Collection("messages")}
}

// EnsureIndexes creates the indexes the conversation queries rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("messages").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "read", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("%w: creating message indexes: %v", storage.ErrUnavailable, err)
	}
	return nil
}

func (r *messageRepoMongo) Insert(ctx context.Context, m *Message) error {
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("%w: inserting message: %v", storage.ErrUnavailable, err)
	}
	return nil
}

func (r *messageRepoMongo) GetByID(ctx context.Context, id string) (*Message, error) {
	var m Message
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetching message: %v", storage.ErrUnavailable, err)
	}
	return &m, nil
}

func (r *messageRepoMongo) ListForAccount(ctx context.Context, accountID string, limit, offset int) ([]*Message, int, error) {
	return r.find(ctx, bson.M{"participants": accountID}, limit, offset)
}

func (r *messageRepoMongo) Conversation(ctx context.Context, a, b string, limit, offset int) ([]*Message, int, error) {
	return r.find(ctx, bson.M{"participants": ParticipantsKey(a, b)}, limit, offset)
}

func (r *messageRepoMongo) find(ctx context.Context, filter bson.M, limit, offset int) ([]*Message, int, error) {
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: counting messages: %v", storage.ErrUnavailable, err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying messages: %v", storage.ErrUnavailable, err)
	}
	defer cur.Close(ctx)

	var messages []*Message
	if err := cur.All(ctx, &messages); err != nil {
		return nil, 0, fmt.Errorf("%w: decoding messages: %v", storage.ErrUnavailable, err)
	}
	return messages, int(total), nil
}

func (r *messageRepoMongo) MarkRead(ctx context.Context, id, receiverID string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "receiver_id": receiverID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return fmt.Errorf("%w: marking message read: %v", storage.ErrUnavailable, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
