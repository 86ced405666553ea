package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/models"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/services"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

// WebhookHandler is the inbound channel adapter: bot platforms deliver raw
// message fragments here. Text fragments go straight into the buffer; voice
// fragments are queued for the transcription workers.
type WebhookHandler struct {
	buffers     services.MessageBufferService
	redis       *redis.Client
	voiceStream string
}

func NewWebhookHandler(buffers services.MessageBufferService, rdb *redis.Client) *WebhookHandler {
	return &WebhookHandler{buffers: buffers, redis: rdb, voiceStream: "voice:stream"}
}

type inboundMessage struct {
	UserID         string `json:"user_id" binding:"required"`
	ConversationID string `json:"conversation_id" binding:"required"`
	InterviewStep  int    `json:"interview_step"`

	MessageID   string `json:"message_id"`
	ContentType string `json:"content_type" binding:"required,oneof=text voice"`
	Content     string `json:"content"`

	VoiceObject string `json:"voice_object"`
	VoiceURL    string `json:"voice_url"`
	Language    string `json:"language"`

	QuestionContext string `json:"question_context"`
}

func (h *WebhookHandler) ReceiveMessage(c *gin.Context) {
	const op = "WebhookHandler.ReceiveMessage"

	var in inboundMessage
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, err.Error(), nil))
		return
	}
	if in.MessageID == "" {
		in.MessageID = uuid.NewString()
	}

	switch in.ContentType {
	case models.ContentTypeText:
		err := h.buffers.AddMessage(c.Request.Context(), in.UserID, in.ConversationID, in.InterviewStep, models.BufferedMessage{
			ID:              in.MessageID,
			Content:         in.Content,
			ContentType:     models.ContentTypeText,
			QuestionContext: in.QuestionContext,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message_id": in.MessageID, "buffered": true})

	case models.ContentTypeVoice:
		if in.VoiceObject == "" && in.VoiceURL == "" {
			writeError(c, utils.E(utils.CodeInvalidArgument, op, "voice messages need voice_object or voice_url", nil))
			return
		}
		err := h.redis.XAdd(c.Request.Context(), &redis.XAddArgs{
			Stream: h.voiceStream,
			Values: map[string]any{
				"user_id":          in.UserID,
				"conversation_id":  in.ConversationID,
				"interview_step":   strconv.Itoa(in.InterviewStep),
				"message_id":       in.MessageID,
				"voice_object":     in.VoiceObject,
				"voice_url":        in.VoiceURL,
				"language":         in.Language,
				"question_context": in.QuestionContext,
			},
		}).Err()
		if err != nil {
			writeError(c, utils.E(utils.CodeInternal, op, "failed to queue voice fragment", err))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message_id": in.MessageID, "queued": true})
	}
}
