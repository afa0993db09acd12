package handler

import (
	"net/http"

	"campus_social/internal/service"
	"campus_social/pkg/logger"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	conversationService service.ConversationService
	messageService      service.MessageService
	unreadService       service.UnreadService
	log                 logger.Logger
}

func NewMessageHandler(
	conversationService service.ConversationService,
	messageService service.MessageService,
	unreadService service.UnreadService,
	log logger.Logger,
) *MessageHandler {
	return &MessageHandler{
		conversationService: conversationService,
		messageService:      messageService,
		unreadService:       unreadService,
		log:                 log,
	}
}

func (h *MessageHandler) ListConversations(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	page, err := h.conversationService.List(c.Request.Context(), userID, queryInt(c, "page", 1), queryInt(c, "pageSize", 20))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// OpenConversation gets or creates the conversation with the user in :id.
func (h *MessageHandler) OpenConversation(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	otherID, ok := idParam(c, "id")
	if !ok {
		return
	}

	summary, err := h.conversationService.Open(c.Request.Context(), userID, otherID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// GetMessages lists the conversation in :id and marks it read for the caller.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	conversationID, ok := idParam(c, "id")
	if !ok {
		return
	}

	page, err := h.messageService.GetMessages(c.Request.Context(), userID, conversationID, queryInt(c, "page", 1), queryInt(c, "pageSize", 20))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

type SendMessageRequest struct {
	ReceiverID int64  `json:"receiverId" binding:"required,gt=0"`
	Content    string `json:"content" binding:"required"`
	Type       string `json:"type"`
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": http.StatusBadRequest})
		return
	}

	message, err := h.messageService.Send(c.Request.Context(), userID, req.ReceiverID, req.Content, req.Type)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	total, err := h.unreadService.TotalForUser(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": total})
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	messageID, ok := idParam(c, "messageId")
	if !ok {
		return
	}

	if err := h.messageService.Delete(c.Request.Context(), userID, messageID); err != nil {
		fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
