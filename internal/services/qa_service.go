package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/metadata"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/models"
	pgrepo "github.com/botcraftengineer/qbs-autonaim-sub007/internal/repositories/postgres"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

// QuestionAnswerService accumulates consolidated question/answer pairs on a
// conversation. All concurrency handling is delegated to the metadata
// coordinator; the append is rebuilt from fresh state on every retry so
// parallel appends never lose entries.
type QuestionAnswerService interface {
	// AppendQuestionAnswer returns true once the pair is committed. The
	// record ID of the mirrored transcript row is returned for the scoring
	// pipeline; it is empty when the append did not commit.
	AppendQuestionAnswer(ctx context.Context, conversationID string, qa metadata.QuestionAnswer) (committed bool, recordID string, err error)
	GetQuestionCount(ctx context.Context, conversationID string) (int, error)
}

type qaService struct {
	meta    ConversationMetadataService
	answers pgrepo.AnswerRepo
	log     *logrus.Logger
}

func NewQuestionAnswerService(meta ConversationMetadataService, answers pgrepo.AnswerRepo, log *logrus.Logger) QuestionAnswerService {
	if log == nil {
		log = logrus.New()
	}
	return &qaService{meta: meta, answers: answers, log: log}
}

func (s *qaService) AppendQuestionAnswer(ctx context.Context, conversationID string, qa metadata.QuestionAnswer) (bool, string, error) {
	const op = "QAService.AppendQuestionAnswer"

	if conversationID == "" || qa.Question == "" {
		return false, "", utils.E(utils.CodeInvalidArgument, op, "conversation_id and question are required", nil)
	}
	if qa.Timestamp == "" {
		qa.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	committed, err := s.meta.UpdateMetadataWith(ctx, conversationID, func(current metadata.ConversationMetadata) (map[string]any, error) {
		next := make([]metadata.QuestionAnswer, 0, len(current.QuestionAnswers)+1)
		next = append(next, current.QuestionAnswers...)
		next = append(next, qa)
		return map[string]any{"questionAnswers": next}, nil
	})
	if err != nil || !committed {
		return false, "", err
	}

	// transcript mirror; failure here must not fail the committed append
	recordID := ""
	if s.answers != nil {
		rec := &models.AnswerRecord{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Question:       qa.Question,
			Answer:         qa.Answer,
			Timestamp:      time.Now().UTC(),
		}
		if err := s.answers.Insert(ctx, rec); err != nil {
			s.log.WithFields(logrus.Fields{
				"conversation_id": conversationID,
				"error":           err.Error(),
			}).Error("failed to mirror answer record")
		} else {
			recordID = rec.ID
		}
	}
	return true, recordID, nil
}

func (s *qaService) GetQuestionCount(ctx context.Context, conversationID string) (int, error) {
	const op = "QAService.GetQuestionCount"

	md, err := s.meta.GetMetadata(ctx, conversationID)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to read conversation metadata", err)
	}
	return len(md.QuestionAnswers), nil
}
