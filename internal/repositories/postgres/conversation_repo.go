package postgres

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/models"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

// ConversationRepo owns the conversations table. Metadata writes go through
// CompareAndSwapMetadata only; nothing else may touch metadata_version.
type ConversationRepo interface {
	Create(ctx context.Context, c *models.Conversation) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	// GetMetadata returns the raw metadata blob and its version inside one
	// consistent read.
	GetMetadata(ctx context.Context, id string) (raw []byte, version int64, err error)
	// CompareAndSwapMetadata writes raw and version+1 only if the stored
	// version still equals expected. Returns false (no error) when another
	// writer won the race.
	CompareAndSwapMetadata(ctx context.Context, id string, expected int64, raw []byte) (bool, error)
}

type conversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *conversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	var row models.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *conversationRepo) GetMetadata(ctx context.Context, id string) ([]byte, int64, error) {
	var row struct {
		Metadata        datatypes.JSON
		MetadataVersion int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Select("metadata", "metadata_version").
		Where("id = ?", id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, utils.ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return []byte(row.Metadata), row.MetadataVersion, nil
}

func (r *conversationRepo) CompareAndSwapMetadata(ctx context.Context, id string, expected int64, raw []byte) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ? AND metadata_version = ?", id, expected).
		Updates(map[string]any{
			"metadata":         datatypes.JSON(raw),
			"metadata_version": expected + 1,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
