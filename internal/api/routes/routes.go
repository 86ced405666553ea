package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/api/handlers"
)

type Deps struct {
	Webhook      *handlers.WebhookHandler
	Conversation *handlers.ConversationHandler
	Vacancy      *handlers.VacancyHandler
	WS           *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	r.POST("/webhook/message", d.Webhook.ReceiveMessage)

	r.POST("/conversation", d.Conversation.Create)
	r.GET("/conversation/:conversation_id/metadata", d.Conversation.GetMetadata)
	r.GET("/conversation/:conversation_id/questions/count", d.Conversation.GetQuestionCount)
	r.GET("/conversation/:conversation_id/answers", d.Conversation.ListAnswers)
	r.GET("/conversation/:conversation_id/buffer", d.Conversation.GetBuffer)
	r.POST("/conversation/:conversation_id/flush", d.Conversation.Flush)

	r.GET("/vacancy/search", d.Vacancy.Search)

	// WebSocket
	r.GET("/ws/conversation/:conversation_id", d.WS.ConversationEvents)
}
