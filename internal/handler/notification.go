package handler

import (
	"net/http"
	"strconv"

	"campus_social/internal/domain"
	"campus_social/internal/service"
	"campus_social/pkg/logger"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	readStateService    service.ReadStateService
	notificationService service.NotificationService
	auditService        service.AuditService
	log                 logger.Logger
}

func NewNotificationHandler(
	readStateService service.ReadStateService,
	notificationService service.NotificationService,
	auditService service.AuditService,
	log logger.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		readStateService:    readStateService,
		notificationService: notificationService,
		auditService:        auditService,
		log:                 log,
	}
}

func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	unreadOnly, _ := strconv.ParseBool(c.Query("unreadOnly"))
	filter := domain.NotificationListFilter{
		Page:       queryInt(c, "page", 1),
		Limit:      queryInt(c, "limit", 20),
		UnreadOnly: unreadOnly,
		Type:       c.Query("type"),
	}

	page, err := h.readStateService.List(c.Request.Context(), userID, filter)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	count, err := h.readStateService.CountUnread(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	n, err := h.readStateService.MarkRead(c.Request.Context(), id, userID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, n)
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	count, err := h.readStateService.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.readStateService.DeleteOne(c.Request.Context(), id, userID); err != nil {
		fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type BatchDeleteRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

func (h *NotificationHandler) BatchDelete(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	var req BatchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": http.StatusBadRequest})
		return
	}

	count, err := h.readStateService.DeleteMany(c.Request.Context(), req.IDs, userID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *NotificationHandler) ClearRead(c *gin.Context) {
	userID, ok := caller(c)
	if !ok {
		return
	}

	count, err := h.readStateService.ClearRead(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

type SystemNotificationRequest struct {
	UserID  int64   `json:"userId"`
	Title   string  `json:"title" binding:"required,max=200"`
	Content string  `json:"content" binding:"required,max=2000"`
	Link    *string `json:"link" binding:"omitempty,max=512"`
}

// SendSystem is admin-only. Without userId the broadcast goes to every active user.
func (h *NotificationHandler) SendSystem(c *gin.Context) {
	adminID, ok := caller(c)
	if !ok {
		return
	}

	var req SystemNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": http.StatusBadRequest})
		return
	}

	broadcast := domain.SystemBroadcast{Title: req.Title, Content: req.Content, Link: req.Link}
	n, err := h.notificationService.NotifySystem(c.Request.Context(), req.UserID, broadcast)
	if err != nil {
		fail(c, err)
		return
	}

	h.log.Info("System notification sent", "admin_id", adminID, "recipient_id", req.UserID)
	payload := map[string]interface{}{"title": req.Title}
	if n == nil {
		h.auditService.LogEvent(c.Request.Context(), &adminID, domain.ActorRoleAdmin, domain.EventTypeSystemBroadcastQueued, payload)
		c.JSON(http.StatusAccepted, gin.H{"queued": true})
		return
	}
	payload["recipient_id"] = req.UserID
	payload["notification_id"] = n.ID
	h.auditService.LogEvent(c.Request.Context(), &adminID, domain.ActorRoleAdmin, domain.EventTypeSystemNotificationSent, payload)
	c.JSON(http.StatusCreated, n)
}

// SystemHistory lists recent privileged actions, newest first. Admin only.
func (h *NotificationHandler) SystemHistory(c *gin.Context) {
	logs, err := h.auditService.Recent(c.Request.Context(), c.Query("eventType"), queryInt(c, "limit", 50))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": logs})
}
