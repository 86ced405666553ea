package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

// WSHandler streams conversation progress events (fragments buffered,
// answers recorded, scores computed) to recruiter dashboards. Workers and
// handlers publish JSON to the conversation's Redis channel; the socket just
// forwards it.
type WSHandler struct {
	redis    *redis.Client
	upgrader websocket.Upgrader
}

func NewWSHandler(rdb *redis.Client) *WSHandler {
	return &WSHandler{
		redis: rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (h *WSHandler) ConversationEvents(c *gin.Context) {
	const op = "WSHandler.ConversationEvents"

	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing conversation_id", nil))
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn := &wsConn{c: raw}
	defer raw.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub := h.redis.Subscribe(ctx, "conversation:"+conversationID+":events")
	defer sub.Close()

	// reader goroutine only detects client close
	go func() {
		for {
			if _, _, err := raw.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.writeText([]byte(msg.Payload)); err != nil {
				return
			}
		}
	}
}
