package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Conversation is the durable record of one candidate interview exchange.
// Metadata is the codec-serialized blob; MetadataVersion is the optimistic
// lock counter and is only ever changed by the conditional-write protocol in
// the metadata coordinator.
type Conversation struct {
	ID        string  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    string  `gorm:"column:user_id;type:text;index" json:"user_id"`
	VacancyID *string `gorm:"column:vacancy_id;type:uuid;index" json:"vacancy_id,omitempty"`
	Channel   string  `gorm:"column:channel;type:text" json:"channel"` // telegram|whatsapp|web

	Metadata        datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	MetadataVersion int64          `gorm:"column:metadata_version;not null;default:0" json:"metadata_version"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Conversation) TableName() string { return "conversations" }

// AnswerRecord mirrors one committed question/answer pair into Postgres so
// recruiters can search transcripts and the scoring worker has a row to
// attach its score and embedding to.
type AnswerRecord struct {
	ID             string          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ConversationID string          `gorm:"column:conversation_id;type:uuid;index" json:"conversation_id"`
	Question       string          `gorm:"column:question;type:text" json:"question"`
	Answer         string          `gorm:"column:answer;type:text" json:"answer"`
	Score          *float64        `gorm:"column:score" json:"score,omitempty"`
	Feedback       string          `gorm:"column:feedback;type:text" json:"feedback,omitempty"`
	Embedding      pgvector.Vector `gorm:"column:embedding;type:vector(768)" json:"embedding"`
	Timestamp      time.Time       `gorm:"column:timestamp;type:timestamptz;index" json:"timestamp"`
}

func (AnswerRecord) TableName() string { return "answer_records" }
