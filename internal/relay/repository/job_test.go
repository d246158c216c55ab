package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/tmt-films/AutoPostingv2/internal/relay/models"
)

func jobNamespace(mt *mtest.T) string {
	return mt.DB.Name() + "." + mt.Coll.Name()
}

func TestMongoJobRepositoryCreate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		job := &models.Job{
			ID:              "job-1",
			UserID:          42,
			Name:            "nightly relay",
			SourceChannelID: -100111,
			TargetChannelID: -100222,
			BatchSize:       10,
			PollInterval:    time.Minute,
			Status:          models.JobStatusStopped,
		}
		if err := repo.Create(context.Background(), job); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
			t.Fatalf("expected created_at and updated_at to be set")
		}
	})

	mt.Run("insert error", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    11000,
			Name:    "DuplicateKey",
			Message: "mock duplicate key",
		}))

		err := repo.Create(context.Background(), &models.Job{ID: "job-1"})
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to create job") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMongoJobRepositoryGetByID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		now := time.Now().UTC().Truncate(time.Second)
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			jobNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "job-1"},
				{Key: "user_id", Value: int64(42)},
				{Key: "job_name", Value: "nightly relay"},
				{Key: "source_channel_id", Value: int64(-100111)},
				{Key: "target_channel_id", Value: int64(-100222)},
				{Key: "batch_size", Value: int32(10)},
				{Key: "status", Value: string(models.JobStatusRunning)},
				{Key: "cursor", Value: int32(25)},
				{Key: "created_at", Value: now},
				{Key: "updated_at", Value: now},
			},
		))

		job, err := repo.GetByID(context.Background(), "job-1")
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if job.Name != "nightly relay" {
			t.Fatalf("unexpected name: got %q", job.Name)
		}
		if job.Cursor != 25 {
			t.Fatalf("unexpected cursor: got %d, want %d", job.Cursor, 25)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, jobNamespace(mt), mtest.FirstBatch))

		_, err := repo.GetByID(context.Background(), "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMongoJobRepositoryCompareAndSetCursor(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("cursor advances", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		swapped, err := repo.CompareAndSetCursor(context.Background(), "job-1", 25, 26)
		if err != nil {
			t.Fatalf("CompareAndSetCursor failed: %v", err)
		}
		if !swapped {
			t.Fatalf("expected swap to succeed")
		}
	})

	mt.Run("expected value lost the race", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		swapped, err := repo.CompareAndSetCursor(context.Background(), "job-1", 25, 26)
		if err != nil {
			t.Fatalf("CompareAndSetCursor failed: %v", err)
		}
		if swapped {
			t.Fatalf("expected swap to fail on stale cursor")
		}
	})

	mt.Run("backward move rejected", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}

		_, err := repo.CompareAndSetCursor(context.Background(), "job-1", 25, 10)
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "cursor cannot move backward") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	mt.Run("update error", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    112,
			Name:    "WriteConflict",
			Message: "mock update conflict",
		}))

		_, err := repo.CompareAndSetCursor(context.Background(), "job-1", 25, 26)
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to advance cursor") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMongoJobRepositoryUpdateStatus(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := repo.UpdateStatus(context.Background(), "job-1", models.JobStatusRunning, "")
		if err != nil {
			t.Fatalf("UpdateStatus failed: %v", err)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := repo.UpdateStatus(context.Background(), "missing", models.JobStatusStopped, "gone")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMongoJobRepositoryResetProgress(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		if err := repo.ResetProgress(context.Background(), "job-1", 9); err != nil {
			t.Fatalf("ResetProgress failed: %v", err)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := repo.ResetProgress(context.Background(), "missing", 0)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMongoJobRepositoryListRunning(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		now := time.Now().UTC().Truncate(time.Second)
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			jobNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "job-1"},
				{Key: "job_name", Value: "first"},
				{Key: "status", Value: string(models.JobStatusRunning)},
				{Key: "created_at", Value: now},
			},
			bson.D{
				{Key: "_id", Value: "job-2"},
				{Key: "job_name", Value: "second"},
				{Key: "status", Value: string(models.JobStatusRunning)},
				{Key: "created_at", Value: now.Add(-time.Hour)},
			},
		))

		jobs, err := repo.ListRunning(context.Background())
		if err != nil {
			t.Fatalf("ListRunning failed: %v", err)
		}
		if len(jobs) != 2 {
			t.Fatalf("unexpected count: got %d, want %d", len(jobs), 2)
		}
	})

	mt.Run("find error", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "mock find error",
		}))

		_, err := repo.ListRunning(context.Background())
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to query jobs") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMongoJobRepositoryStats(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			jobNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "total", Value: int64(5)},
				{Key: "running", Value: int64(2)},
				{Key: "forwarded", Value: int64(130)},
				{Key: "failed", Value: int64(4)},
			},
		))

		stats, err := repo.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.TotalJobs != 5 || stats.RunningJobs != 2 {
			t.Fatalf("unexpected job counts: %+v", stats)
		}
		if stats.Forwarded != 130 || stats.ForwardFails != 4 {
			t.Fatalf("unexpected message counts: %+v", stats)
		}
	})

	mt.Run("empty collection", func(mt *mtest.T) {
		repo := &MongoJobRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, jobNamespace(mt), mtest.FirstBatch))

		stats, err := repo.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.TotalJobs != 0 {
			t.Fatalf("expected zero stats, got %+v", stats)
		}
	})
}
