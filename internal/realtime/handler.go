package realtime

import (
	"strings"

	"quill/internal/logger"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	ParseToken(token string) (uint, error)
}

// Handler upgrades GET /ws requests.
type Handler struct {
	hub            *Hub
	tokens         TokenParser
	originPatterns []string
}

func NewHandler(hub *Hub, tokens TokenParser, origins []string) *Handler {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		patterns = append(patterns, o)
	}
	return &Handler{hub: hub, tokens: tokens, originPatterns: patterns}
}

// Serve 令牌可通过 ?token= 或 Authorization: Bearer 传入；无效或缺失时按匿名连接处理
func (h *Handler) Serve(c *gin.Context) {
	userID := h.authenticate(c)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, userID)
	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump()
}

func (h *Handler) authenticate(c *gin.Context) uint {
	token := c.Query("token")
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	if token == "" || h.tokens == nil {
		return 0
	}
	id, err := h.tokens.ParseToken(token)
	if err != nil {
		return 0
	}
	return id
}
