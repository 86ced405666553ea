package postgres

import (
	"context"
	"errors"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/models"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

type AnswerRepo interface {
	Insert(ctx context.Context, rec *models.AnswerRecord) error
	GetByID(ctx context.Context, id string) (*models.AnswerRecord, error)
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]models.AnswerRecord, error)
	SetScore(ctx context.Context, id string, score float64, feedback string, embedding []float32) error
	// SearchSimilar ranks answers by cosine distance to the query embedding.
	SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]models.AnswerRecord, error)
}

type answerRepo struct {
	db *gorm.DB
}

func NewAnswerRepo(db *gorm.DB) AnswerRepo {
	return &answerRepo{db: db}
}

func (r *answerRepo) Insert(ctx context.Context, rec *models.AnswerRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *answerRepo) GetByID(ctx context.Context, id string) (*models.AnswerRecord, error) {
	var row models.AnswerRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *answerRepo) ListByConversation(ctx context.Context, conversationID string, limit int) ([]models.AnswerRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.AnswerRecord
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *answerRepo) SetScore(ctx context.Context, id string, score float64, feedback string, embedding []float32) error {
	updates := map[string]any{
		"score":    score,
		"feedback": feedback,
	}
	if len(embedding) > 0 {
		updates["embedding"] = pgvector.NewVector(embedding)
	}
	res := r.db.WithContext(ctx).
		Model(&models.AnswerRecord{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *answerRepo) SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]models.AnswerRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []models.AnswerRecord
	err := r.db.WithContext(ctx).
		Where("embedding IS NOT NULL").
		Clauses(clause.OrderBy{Expression: clause.Expr{
			SQL:                "embedding <=> ?",
			Vars:               []any{pgvector.NewVector(embedding)},
			WithoutParentheses: true,
		}}).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
