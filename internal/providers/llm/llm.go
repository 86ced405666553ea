package llm

import "context"

// AnswerScore is the model's judgment of one consolidated answer.
type AnswerScore struct {
	Score    float64 `json:"score"` // 0..1
	Feedback string  `json:"feedback"`
}

type Provider interface {
	ScoreAnswer(ctx context.Context, question, answer string) (AnswerScore, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Close() error
}
