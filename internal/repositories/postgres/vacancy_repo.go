package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/models"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

type VacancyRepo interface {
	GetByID(ctx context.Context, id string) (*models.Vacancy, error)
	// Search matches active vacancies by title or listed skill.
	Search(ctx context.Context, query string, limit int) ([]models.Vacancy, error)
}

type vacancyRepo struct {
	db *gorm.DB
}

func NewVacancyRepo(db *gorm.DB) VacancyRepo {
	return &vacancyRepo{db: db}
}

func (r *vacancyRepo) GetByID(ctx context.Context, id string) (*models.Vacancy, error) {
	var row models.Vacancy
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *vacancyRepo) Search(ctx context.Context, query string, limit int) ([]models.Vacancy, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.Vacancy
	err := r.db.WithContext(ctx).
		Where("active = TRUE").
		Where("title ILIKE ? OR ? = ANY(skills)", "%"+query+"%", query).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
