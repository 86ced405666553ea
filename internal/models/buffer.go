package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ContentTypeText  = "text"
	ContentTypeVoice = "voice"
)

// BufferedMessage is one raw inbound fragment before consolidation into a
// logical answer. Immutable once created.
type BufferedMessage struct {
	ID              string `bson:"id" json:"id"`
	Content         string `bson:"content" json:"content"`
	ContentType     string `bson:"content_type" json:"content_type"` // text|voice
	Timestamp       int64  `bson:"timestamp" json:"timestamp"`       // unix ms
	QuestionContext string `bson:"question_context,omitempty" json:"question_context,omitempty"`
}

// MessageBuffer holds the in-flight fragments for one
// (user, conversation, interview step) key. Messages keep insertion order and
// are never re-sorted.
type MessageBuffer struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         string             `bson:"user_id" json:"user_id"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	InterviewStep  int                `bson:"interview_step" json:"interview_step"`

	Messages []BufferedMessage `bson:"messages" json:"messages"`

	// FlushID is set exactly once when a drain claims the buffer, so a
	// retried drain carrying the same token is idempotent.
	FlushID *string `bson:"flush_id,omitempty" json:"flush_id,omitempty"`

	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	LastUpdatedAt time.Time `bson:"last_updated_at" json:"last_updated_at"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
