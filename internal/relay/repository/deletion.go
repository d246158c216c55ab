package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tmt-films/AutoPostingv2/internal/relay/models"
)

// MongoDeletionRepository implements DeletionRepository on a MongoDB collection.
type MongoDeletionRepository struct {
	collection *mongo.Collection
}

// NewDeletionRepository creates the deletion repository over the
// "pending_deletions" collection.
func NewDeletionRepository(db *mongo.Database) *MongoDeletionRepository {
	return &MongoDeletionRepository{
		collection: db.Collection("pending_deletions"),
	}
}

func (r *MongoDeletionRepository) Create(ctx context.Context, rec *models.DeletionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if !rec.DueAt.After(rec.CreatedAt) {
		return fmt.Errorf("deletion due time %s is not in the future", rec.DueAt)
	}

	if _, err := r.collection.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to create deletion record: %w", err)
	}
	return nil
}

func (r *MongoDeletionRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*models.DeletionRecord, error) {
	filter := bson.M{"due_at": bson.M{"$lte": now.UTC()}}
	opts := options.Find().
		SetSort(bson.D{{Key: "due_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query due deletions: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*models.DeletionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode deletion records: %w", err)
	}
	return records, nil
}

func (r *MongoDeletionRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete deletion record: %w", err)
	}
	return nil
}

func (r *MongoDeletionRepository) DeleteByJob(ctx context.Context, jobID string) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"job_id": jobID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete deletion records for job %s: %w", jobID, err)
	}
	return res.DeletedCount, nil
}

func (r *MongoDeletionRepository) CountPending(ctx context.Context) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count pending deletions: %w", err)
	}
	return count, nil
}

func (r *MongoDeletionRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// due_at drives the sweeper scan
		{Keys: bson.D{{Key: "due_at", Value: 1}}},
		{Keys: bson.D{{Key: "job_id", Value: 1}}},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for pending_deletions: %w", err)
	}
	return nil
}
