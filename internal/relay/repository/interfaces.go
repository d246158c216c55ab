package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tmt-films/AutoPostingv2/internal/relay/models"
)

// JobStats aggregates progress across all jobs, for the /stats surface.
type JobStats struct {
	TotalJobs    int64
	RunningJobs  int64
	Forwarded    int64
	ForwardFails int64
}

// JobRepository is the durable store for relay jobs.
type JobRepository interface {
	// Create persists a new job.
	Create(ctx context.Context, job *models.Job) error

	// GetByID returns a job by id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Job, error)

	// List returns all jobs, newest first.
	List(ctx context.Context) ([]*models.Job, error)

	// ListByUser returns all jobs owned by a user, newest first.
	ListByUser(ctx context.Context, userID int64) ([]*models.Job, error)

	// ListRunning returns all jobs with status running, for startup rehydration.
	ListRunning(ctx context.Context) ([]*models.Job, error)

	// UpdateStatus transitions the status field and records the last error
	// (empty clears it).
	UpdateStatus(ctx context.Context, id string, status models.JobStatus, lastError string) error

	// Update replaces the job's configuration fields after an edit.
	Update(ctx context.Context, job *models.Job) error

	// CompareAndSetCursor advances the cursor only if it still holds the
	// expected value. Returns false when a concurrent writer got there first.
	CompareAndSetCursor(ctx context.Context, id string, expected, next int) (bool, error)

	// IncrementCounters adds to the processed/error counters.
	IncrementCounters(ctx context.Context, id string, processed, errors int64) error

	// TouchLastRun records the end of a poll cycle.
	TouchLastRun(ctx context.Context, id string, at time.Time) error

	// ResetProgress rewinds the cursor and zeroes the counters.
	ResetProgress(ctx context.Context, id string, cursor int) error

	// Delete removes the job record.
	Delete(ctx context.Context, id string) error

	// Stats aggregates counts across all jobs.
	Stats(ctx context.Context) (*JobStats, error)

	// EnsureIndexes creates the collection indexes.
	EnsureIndexes(ctx context.Context) error
}

// DeletionRepository is the durable store for pending auto-deletions.
type DeletionRepository interface {
	// Create persists a scheduled deletion.
	Create(ctx context.Context, rec *models.DeletionRecord) error

	// FindDue returns up to limit records with due_at <= now, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*models.DeletionRecord, error)

	// Delete removes one record after execution.
	Delete(ctx context.Context, id primitive.ObjectID) error

	// DeleteByJob removes every record owned by a job.
	DeleteByJob(ctx context.Context, jobID string) (int64, error)

	// CountPending returns the number of not-yet-executed records.
	CountPending(ctx context.Context) (int64, error)

	// EnsureIndexes creates the collection indexes.
	EnsureIndexes(ctx context.Context) error
}

// SourceMessageRepository caches source channel posts for batch fetching.
type SourceMessageRepository interface {
	// Save upserts a post keyed by (chat_id, message_id).
	Save(ctx context.Context, msg *models.SourceMessage) error

	// FetchSince returns up to limit posts of a chat with message_id strictly
	// greater than cursor, ascending.
	FetchSince(ctx context.Context, chatID int64, cursor, limit int) ([]*models.SourceMessage, error)

	// EnsureIndexes creates the collection indexes, including the TTL index.
	EnsureIndexes(ctx context.Context) error
}
