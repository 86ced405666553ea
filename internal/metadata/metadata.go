// Package metadata defines the conversation metadata schema and its strict
// codec. The stored blob must always be schema-valid: Parse rejects malformed
// data with a per-field violation list instead of coercing it.
package metadata

// How a candidate was matched to a conversation.
const (
	IdentifiedByPinCode       = "pin_code"
	IdentifiedByVacancySearch = "vacancy_search"
	IdentifiedByUsername      = "username"
	IdentifiedByNone          = "none"
)

// ConversationMetadata is the evolving interview state attached 1:1 to a
// conversation row. interviewStarted and interviewCompleted are one-way
// flags; once true they never go back to false. questionAnswers is
// append-only in normal operation.
type ConversationMetadata struct {
	IdentifiedBy string `json:"identifiedBy,omitempty" validate:"omitempty,oneof=pin_code vacancy_search username none"`
	PinCode      string `json:"pinCode,omitempty"`
	SearchQuery  string `json:"searchQuery,omitempty"`
	AwaitingPin  bool   `json:"awaitingPin,omitempty"`

	InterviewStarted   bool `json:"interviewStarted,omitempty"`
	InterviewCompleted bool `json:"interviewCompleted,omitempty"`

	QuestionAnswers   []QuestionAnswer `json:"questionAnswers,omitempty" validate:"omitempty,dive"`
	LastQuestionAsked string           `json:"lastQuestionAsked,omitempty"`
	CompletedAt       string           `json:"completedAt,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`

	// Written by the scoring worker.
	AverageScore  float64 `json:"averageScore,omitempty" validate:"omitempty,min=0,max=1"`
	ScoredAnswers int     `json:"scoredAnswers,omitempty" validate:"omitempty,min=0"`
}

// QuestionAnswer is one consolidated answer to one interview question.
type QuestionAnswer struct {
	Question  string `json:"question" validate:"required"`
	Answer    string `json:"answer"`
	Timestamp string `json:"timestamp,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}
