package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeletionRecord schedules removal of one forwarded message.
// Created in the same commit as the cursor advance that produced the forward;
// destroyed when executed or when the owning job is deleted.
type DeletionRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	JobID     string             `bson:"job_id"`
	ChatID    int64              `bson:"chat_id"`    // target chat holding the forwarded message
	MessageID int                `bson:"message_id"` // forwarded message id
	DueAt     time.Time          `bson:"due_at"`
	CreatedAt time.Time          `bson:"created_at"`
}
