package handler

import (
	"net/http"
	"strings"

	"campus_social/internal/middleware"
	"campus_social/internal/realtime"
	"campus_social/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// TokenParser validates a bearer token. Browsers cannot set headers on a
// websocket handshake, so the token usually arrives as ?token=.
type TokenParser interface {
	ParseToken(token string) (*middleware.Claims, error)
}

type WebSocketHandler struct {
	hub      *realtime.Hub
	tokens   TokenParser
	cfg      realtime.SessionConfig
	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, tokens TokenParser, cfg realtime.SessionConfig, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		tokens: tokens,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log,
	}
}

func (h *WebSocketHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required", "code": http.StatusUnauthorized})
		return
	}

	claims, err := h.tokens.ParseToken(token)
	if err != nil {
		h.log.Debug("Websocket token rejected", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "code": http.StatusUnauthorized})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade connection", "error", err)
		return
	}

	session := realtime.NewSession(claims.UserID, conn, h.cfg, h.log)
	h.log.Info("Websocket connected", "user_id", claims.UserID, "session_id", session.ID)
	session.Serve(h.hub)
	h.log.Info("Websocket disconnected", "user_id", claims.UserID, "session_id", session.ID)
}
