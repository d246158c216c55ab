package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tmt-films/AutoPostingv2/internal/relay/models"
)

// MongoSourceMessageRepository implements SourceMessageRepository on a
// MongoDB collection with a TTL index bounding the cache size.
type MongoSourceMessageRepository struct {
	collection *mongo.Collection
	retention  time.Duration
}

// NewSourceMessageRepository creates the source post cache over the
// "source_messages" collection. Posts older than retention are expired
// by MongoDB itself.
func NewSourceMessageRepository(db *mongo.Database, retention time.Duration) *MongoSourceMessageRepository {
	return &MongoSourceMessageRepository{
		collection: db.Collection("source_messages"),
		retention:  retention,
	}
}

func (r *MongoSourceMessageRepository) Save(ctx context.Context, msg *models.SourceMessage) error {
	if msg.PostedAt.IsZero() {
		msg.PostedAt = time.Now().UTC()
	}

	filter := bson.M{"chat_id": msg.ChatID, "message_id": msg.MessageID}
	update := bson.M{
		"$set": bson.M{
			"text":      msg.Text,
			"caption":   msg.Caption,
			"has_media": msg.HasMedia,
		},
		"$setOnInsert": bson.M{
			"chat_id":    msg.ChatID,
			"message_id": msg.MessageID,
			"posted_at":  msg.PostedAt,
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save source message: %w", err)
	}
	return nil
}

func (r *MongoSourceMessageRepository) FetchSince(ctx context.Context, chatID int64, cursor, limit int) ([]*models.SourceMessage, error) {
	filter := bson.M{
		"chat_id":    chatID,
		"message_id": bson.M{"$gt": cursor},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "message_id", Value: 1}}).
		SetLimit(int64(limit))

	cur, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query source messages: %w", err)
	}
	defer cur.Close(ctx)

	var messages []*models.SourceMessage
	if err := cur.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode source messages: %w", err)
	}
	return messages, nil
}

func (r *MongoSourceMessageRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// batch fetch path
		{
			Keys: bson.D{
				{Key: "chat_id", Value: 1},
				{Key: "message_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		// TTL: the cache only needs to outlive the slowest job's backlog
		{
			Keys:    bson.D{{Key: "posted_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(r.retention.Seconds())),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for source_messages: %w", err)
	}
	return nil
}
