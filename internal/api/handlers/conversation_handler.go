package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/metadata"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/models"
	pgrepo "github.com/botcraftengineer/qbs-autonaim-sub007/internal/repositories/postgres"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/services"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

type ConversationHandler struct {
	convos       pgrepo.ConversationRepo
	answers      pgrepo.AnswerRepo
	buffers      services.MessageBufferService
	meta         services.ConversationMetadataService
	qa           services.QuestionAnswerService
	redis        *redis.Client
	answerStream string
}

func NewConversationHandler(
	convos pgrepo.ConversationRepo,
	answers pgrepo.AnswerRepo,
	buffers services.MessageBufferService,
	meta services.ConversationMetadataService,
	qa services.QuestionAnswerService,
	rdb *redis.Client,
) *ConversationHandler {
	return &ConversationHandler{
		convos:       convos,
		answers:      answers,
		buffers:      buffers,
		meta:         meta,
		qa:           qa,
		redis:        rdb,
		answerStream: "answers:stream",
	}
}

type createConversationRequest struct {
	UserID    string  `json:"user_id" binding:"required"`
	VacancyID *string `json:"vacancy_id"`
	Channel   string  `json:"channel" binding:"required,oneof=telegram whatsapp web"`
}

func (h *ConversationHandler) Create(c *gin.Context) {
	const op = "ConversationHandler.Create"

	var in createConversationRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, err.Error(), nil))
		return
	}

	now := time.Now().UTC()
	row := &models.Conversation{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		VacancyID:       in.VacancyID,
		Channel:         in.Channel,
		Metadata:        datatypes.JSON([]byte(`{}`)),
		MetadataVersion: 0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.convos.Create(c.Request.Context(), row); err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to create conversation", err))
		return
	}
	c.JSON(http.StatusCreated, row)
}

func (h *ConversationHandler) GetMetadata(c *gin.Context) {
	md, err := h.meta.GetMetadata(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, md)
}

func (h *ConversationHandler) GetQuestionCount(c *gin.Context) {
	n, err := h.qa.GetQuestionCount(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": c.Param("conversation_id"),
		"question_count":  n,
	})
}

func (h *ConversationHandler) ListAnswers(c *gin.Context) {
	const op = "ConversationHandler.ListAnswers"

	limit := 50
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	rows, err := h.answers.ListByConversation(c.Request.Context(), c.Param("conversation_id"), limit)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "failed to list answers", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": c.Param("conversation_id"),
		"answers":         rows,
	})
}

type flushRequest struct {
	UserID        string `json:"user_id" binding:"required"`
	InterviewStep int    `json:"interview_step"`
	Question      string `json:"question" binding:"required"`
	FlushID       string `json:"flush_id"`
}

// Flush is the step-advance trigger: it drains the fragment buffer for the
// step, consolidates the fragments into one logical answer, appends the
// question/answer pair through the accumulator, and queues the answer for
// scoring.
func (h *ConversationHandler) Flush(c *gin.Context) {
	const op = "ConversationHandler.Flush"

	conversationID := c.Param("conversation_id")

	var in flushRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, err.Error(), nil))
		return
	}
	if in.FlushID == "" {
		in.FlushID = uuid.NewString()
	}

	msgs, err := h.buffers.DrainMessages(c.Request.Context(), in.UserID, conversationID, in.InterviewStep, in.FlushID)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(msgs) == 0 {
		c.JSON(http.StatusOK, gin.H{"flushed": false, "reason": "empty buffer"})
		return
	}

	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if s := strings.TrimSpace(m.Content); s != "" {
			parts = append(parts, s)
		}
	}
	answer := strings.Join(parts, " ")

	committed, recordID, err := h.qa.AppendQuestionAnswer(c.Request.Context(), conversationID, metadata.QuestionAnswer{
		Question: in.Question,
		Answer:   answer,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if !committed {
		// answer not yet confirmed; the bot layer may prompt a retry
		c.JSON(http.StatusConflict, gin.H{"flushed": false, "reason": "metadata update not committed"})
		return
	}

	if recordID != "" && h.redis != nil {
		_ = h.redis.XAdd(c.Request.Context(), &redis.XAddArgs{
			Stream: h.answerStream,
			Values: map[string]any{
				"conversation_id": conversationID,
				"record_id":       recordID,
				"question":        in.Question,
				"answer":          answer,
			},
		}).Err()
	}

	count, err := h.qa.GetQuestionCount(c.Request.Context(), conversationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"flushed":        true,
		"flush_id":       in.FlushID,
		"fragments":      len(msgs),
		"question_count": count,
	})
}

func (h *ConversationHandler) GetBuffer(c *gin.Context) {
	const op = "ConversationHandler.GetBuffer"

	userID := c.Query("user_id")
	if userID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "user_id query parameter is required", nil))
		return
	}
	step, _ := strconv.Atoi(c.Query("interview_step"))

	msgs, err := h.buffers.GetMessages(c.Request.Context(), userID, c.Param("conversation_id"), step)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": c.Param("conversation_id"),
		"interview_step":  step,
		"messages":        msgs,
	})
}
