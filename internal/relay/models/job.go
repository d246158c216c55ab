package models

import (
	"time"
)

// JobStatus is the lifecycle state of a relay job.
type JobStatus string

const (
	JobStatusStopped JobStatus = "stopped"
	JobStatusRunning JobStatus = "running"
	JobStatusPaused  JobStatus = "paused"
)

// FilterMode selects which source posts a job forwards.
type FilterMode string

const (
	FilterAll       FilterMode = "all"
	FilterMediaOnly FilterMode = "media"
	FilterTextOnly  FilterMode = "text"
)

// Valid reports whether the filter mode is one of the known values.
func (m FilterMode) Valid() bool {
	switch m {
	case FilterAll, FilterMediaOnly, FilterTextOnly:
		return true
	}
	return false
}

// Matches reports whether a cached source post passes the filter.
// Text-only means text without media, matching the original bot semantics.
func (m FilterMode) Matches(msg *SourceMessage) bool {
	switch m {
	case FilterAll:
		return true
	case FilterMediaOnly:
		return msg.HasMedia
	case FilterTextOnly:
		return msg.Text != "" && !msg.HasMedia
	}
	return false
}

// InlineButton is one url button attached under forwarded posts.
type InlineButton struct {
	Label string `bson:"label"`
	URL   string `bson:"url"`
}

// Job is a relay configuration together with its live progress.
// The cursor is the id of the last source message already processed
// (forwarded or filtered past); it never moves backward.
type Job struct {
	ID              string         `bson:"_id"` // UUID, stable across restarts
	UserID          int64          `bson:"user_id"`
	Name            string         `bson:"job_name"`
	SourceChannelID int64          `bson:"source_channel_id"`
	TargetChannelID int64          `bson:"target_channel_id"`
	StartPostID     int            `bson:"start_post_id"`
	EndPostID       int            `bson:"end_post_id"` // 0 = all future posts
	BatchSize       int            `bson:"batch_size"`
	PollInterval    time.Duration  `bson:"poll_interval"`
	AutoDeleteAfter time.Duration  `bson:"auto_delete_after"` // 0 = never delete
	FilterMode      FilterMode     `bson:"filter_type"`
	CaptionTemplate string         `bson:"custom_caption"`
	Buttons         []InlineButton `bson:"buttons,omitempty"`

	Status         JobStatus `bson:"status"`
	Cursor         int       `bson:"cursor"`
	ProcessedCount int64     `bson:"processed_count"`
	ErrorCount     int64     `bson:"error_count"`
	LastError      string    `bson:"last_error,omitempty"`
	LastRunAt      time.Time `bson:"last_run_at,omitempty"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// AutoDelete reports whether forwarded messages are scheduled for deletion.
func (j *Job) AutoDelete() bool { return j.AutoDeleteAfter > 0 }

// OpenEnded reports whether the job has no end post and keeps following
// new source posts indefinitely.
func (j *Job) OpenEnded() bool { return j.EndPostID <= 0 }

// RangeExhausted reports whether a bounded job has processed its whole range.
func (j *Job) RangeExhausted() bool { return !j.OpenEnded() && j.Cursor >= j.EndPostID }

// InitialCursor is the cursor value for a fresh or reset job: one before the
// first post of the range, so the first fetch starts at StartPostID.
func (j *Job) InitialCursor() int {
	if j.StartPostID > 0 {
		return j.StartPostID - 1
	}
	return 0
}
