package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tmt-films/AutoPostingv2/internal/relay/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// MongoJobRepository implements JobRepository on a MongoDB collection.
type MongoJobRepository struct {
	collection *mongo.Collection
}

// NewJobRepository creates the job repository over the "jobs" collection.
func NewJobRepository(db *mongo.Database) *MongoJobRepository {
	return &MongoJobRepository{
		collection: db.Collection("jobs"),
	}
}

func (r *MongoJobRepository) Create(ctx context.Context, job *models.Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *MongoJobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return &job, nil
}

func (r *MongoJobRepository) List(ctx context.Context) ([]*models.Job, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoJobRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Job, error) {
	return r.find(ctx, bson.M{"user_id": userID})
}

func (r *MongoJobRepository) ListRunning(ctx context.Context) ([]*models.Job, error) {
	return r.find(ctx, bson.M{"status": models.JobStatusRunning})
}

func (r *MongoJobRepository) find(ctx context.Context, filter bson.M) ([]*models.Job, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var jobs []*models.Job
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("failed to decode jobs: %w", err)
	}
	return jobs, nil
}

func (r *MongoJobRepository) UpdateStatus(ctx context.Context, id string, status models.JobStatus, lastError string) error {
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoJobRepository) Update(ctx context.Context, job *models.Job) error {
	job.UpdatedAt = time.Now().UTC()
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": job.ID}, job)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CompareAndSetCursor is the single serialization point for a job's cursor.
// The filter matches on the expected value, so a stale runner loses the race
// instead of rewinding progress.
func (r *MongoJobRepository) CompareAndSetCursor(ctx context.Context, id string, expected, next int) (bool, error) {
	if next < expected {
		return false, fmt.Errorf("cursor cannot move backward: %d -> %d", expected, next)
	}

	filter := bson.M{"_id": id, "cursor": expected}
	update := bson.M{
		"$set": bson.M{
			"cursor":     next,
			"updated_at": time.Now().UTC(),
		},
	}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to advance cursor for job %s: %w", id, err)
	}
	return res.MatchedCount > 0, nil
}

func (r *MongoJobRepository) IncrementCounters(ctx context.Context, id string, processed, errors int64) error {
	update := bson.M{
		"$inc": bson.M{
			"processed_count": processed,
			"error_count":     errors,
		},
	}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return fmt.Errorf("failed to increment counters for job %s: %w", id, err)
	}
	return nil
}

func (r *MongoJobRepository) TouchLastRun(ctx context.Context, id string, at time.Time) error {
	update := bson.M{"$set": bson.M{"last_run_at": at.UTC()}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return fmt.Errorf("failed to touch last run for job %s: %w", id, err)
	}
	return nil
}

func (r *MongoJobRepository) ResetProgress(ctx context.Context, id string, cursor int) error {
	update := bson.M{
		"$set": bson.M{
			"cursor":          cursor,
			"processed_count": int64(0),
			"error_count":     int64(0),
			"last_error":      "",
			"updated_at":      time.Now().UTC(),
		},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to reset job %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoJobRepository) Delete(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoJobRepository) Stats(ctx context.Context) (*JobStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":       nil,
			"total":     bson.M{"$sum": 1},
			"forwarded": bson.M{"$sum": "$processed_count"},
			"failed":    bson.M{"$sum": "$error_count"},
			"running": bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$status", models.JobStatusRunning}}, 1, 0},
			}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate job stats: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Total     int64 `bson:"total"`
		Running   int64 `bson:"running"`
		Forwarded int64 `bson:"forwarded"`
		Failed    int64 `bson:"failed"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode job stats: %w", err)
	}

	stats := &JobStats{}
	if len(rows) > 0 {
		stats.TotalJobs = rows[0].Total
		stats.RunningJobs = rows[0].Running
		stats.Forwarded = rows[0].Forwarded
		stats.ForwardFails = rows[0].Failed
	}
	return stats, nil
}

func (r *MongoJobRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for jobs: %w", err)
	}
	return nil
}
