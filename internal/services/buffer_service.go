package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/models"
	mongorepo "github.com/botcraftengineer/qbs-autonaim-sub007/internal/repositories/mongo"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

// MessageBufferService accumulates fragmented candidate messages per
// (user, conversation, interview step) key until a flush consolidates them
// into one logical answer. Fragments keep arrival order; keys are fully
// isolated from each other.
type MessageBufferService interface {
	AddMessage(ctx context.Context, userID, conversationID string, step int, msg models.BufferedMessage) error
	GetMessages(ctx context.Context, userID, conversationID string, step int) ([]models.BufferedMessage, error)
	ClearBuffer(ctx context.Context, userID, conversationID string, step int) error
	HasBuffer(ctx context.Context, userID, conversationID string, step int) (bool, error)
	// DrainMessages is the atomic get+clear: it claims the buffer with
	// flushID, removes it, and returns its fragments. Retries with the same
	// flushID are safe. Prefer this over GetMessages+ClearBuffer, which can
	// drop a fragment arriving between the two calls.
	DrainMessages(ctx context.Context, userID, conversationID string, step int, flushID string) ([]models.BufferedMessage, error)
}

type bufferService struct {
	buffers mongorepo.BufferRepository
}

func NewMessageBufferService(buffers mongorepo.BufferRepository) MessageBufferService {
	return &bufferService{buffers: buffers}
}

func (s *bufferService) AddMessage(ctx context.Context, userID, conversationID string, step int, msg models.BufferedMessage) error {
	const op = "BufferService.AddMessage"

	if userID == "" || conversationID == "" || step < 0 {
		return utils.E(utils.CodeInvalidArgument, op, "user_id, conversation_id, and a non-negative interview_step are required", nil)
	}
	if msg.Content == "" {
		return utils.E(utils.CodeInvalidArgument, op, "message content is required", nil)
	}
	if msg.ContentType != models.ContentTypeText && msg.ContentType != models.ContentTypeVoice {
		return utils.E(utils.CodeInvalidArgument, op, "content_type must be text or voice", nil)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	if err := s.buffers.Append(ctx, userID, conversationID, step, msg); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to append message fragment", err)
	}
	return nil
}

func (s *bufferService) GetMessages(ctx context.Context, userID, conversationID string, step int) ([]models.BufferedMessage, error) {
	const op = "BufferService.GetMessages"

	buf, err := s.buffers.Get(ctx, userID, conversationID, step)
	if errors.Is(err, utils.ErrNotFound) {
		return []models.BufferedMessage{}, nil
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read message buffer", err)
	}
	return buf.Messages, nil
}

func (s *bufferService) ClearBuffer(ctx context.Context, userID, conversationID string, step int) error {
	const op = "BufferService.ClearBuffer"

	if err := s.buffers.Clear(ctx, userID, conversationID, step); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to clear message buffer", err)
	}
	return nil
}

func (s *bufferService) HasBuffer(ctx context.Context, userID, conversationID string, step int) (bool, error) {
	const op = "BufferService.HasBuffer"

	ok, err := s.buffers.Exists(ctx, userID, conversationID, step)
	if err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to check message buffer", err)
	}
	return ok, nil
}

func (s *bufferService) DrainMessages(ctx context.Context, userID, conversationID string, step int, flushID string) ([]models.BufferedMessage, error) {
	const op = "BufferService.DrainMessages"

	if flushID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "flush_id is required", nil)
	}

	msgs, err := s.buffers.Drain(ctx, userID, conversationID, step, flushID)
	if errors.Is(err, utils.ErrNotFound) {
		return []models.BufferedMessage{}, nil
	}
	if errors.Is(err, mongorepo.ErrBufferClaimed) {
		return nil, utils.E(utils.CodeConflict, op, "buffer already claimed by another flush", err)
	}
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to drain message buffer", err)
	}
	return msgs, nil
}
