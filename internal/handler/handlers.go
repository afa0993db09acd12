package handler

import (
	"campus_social/internal/middleware"
	"campus_social/internal/realtime"
	"campus_social/internal/service"
	"campus_social/pkg/logger"
)

type Handlers struct {
	Health       *HealthHandler
	Message      *MessageHandler
	Notification *NotificationHandler
	WebSocket    *WebSocketHandler
}

func NewHandlers(
	services *service.Services,
	hub *realtime.Hub,
	auth *middleware.AuthMiddleware,
	sessionCfg realtime.SessionConfig,
	checks map[string]HealthCheck,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(checks),
		Message:      NewMessageHandler(services.Conversation, services.Message, services.Unread, log),
		Notification: NewNotificationHandler(services.ReadState, services.Notification, services.Audit, log),
		WebSocket:    NewWebSocketHandler(hub, auth, sessionCfg, log),
	}
}
