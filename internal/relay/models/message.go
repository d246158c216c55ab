package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SourceMessage is a cached copy of a source channel post.
// The Bot API offers no channel-history call, so the bot records every
// channel post it sees and jobs fetch batches from this cache.
type SourceMessage struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	ChatID    int64              `bson:"chat_id"`
	MessageID int                `bson:"message_id"`
	Text      string             `bson:"text,omitempty"`
	Caption   string             `bson:"caption,omitempty"`
	HasMedia  bool               `bson:"has_media"`
	PostedAt  time.Time          `bson:"posted_at"` // TTL index field
}

// OriginalCaption returns the text a caption template substitutes for
// {caption}: the media caption for media posts, the text otherwise.
func (m *SourceMessage) OriginalCaption() string {
	if m.HasMedia {
		return m.Caption
	}
	return m.Text
}
