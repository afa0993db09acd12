package service

import (
	"campus_social/internal/config"
	"campus_social/internal/realtime"
	"campus_social/internal/repository"
	"campus_social/pkg/logger"
)

type Services struct {
	Conversation ConversationService
	Message      MessageService
	Unread       UnreadService
	Notification NotificationService
	ReadState    ReadStateService
	RateLimit    RateLimitService
	Audit        AuditService
	Dispatcher   *Dispatcher
}

// NewServices wires the core. When queue is nil, system broadcasts run
// in-process through the dispatcher using broadcaster.
func NewServices(
	repos *repository.Repositories,
	publisher realtime.Publisher,
	broadcaster SystemBroadcaster,
	queue BroadcastQueue,
	cfg *config.Config,
	log logger.Logger,
) *Services {
	dispatcher := NewDispatcher(cfg.Notification.SideEffectTimeout, log)
	if queue == nil {
		log.Warn("Job queue disabled, system broadcasts run in-process")
		queue = NewInlineBroadcastQueue(dispatcher, broadcaster)
	}

	rateLimit := NewRateLimitService(repos.RateLimit, log)
	conversations := NewConversationService(repos.Conversation, repos.User, cfg.Messaging, log)
	unread := NewUnreadService(repos.Conversation, repos.UnreadCache, log)
	notifications := NewNotificationService(repos.Notification, repos.User, publisher, queue, dispatcher, log)

	services := &Services{
		Conversation: conversations,
		Unread:       unread,
		Notification: notifications,
		ReadState:    NewReadStateService(repos.Notification, cfg.Notification, log),
		RateLimit:    rateLimit,
		Audit:        NewAuditService(repos.Audit, log),
		Dispatcher:   dispatcher,
		Message: NewMessageService(
			repos.Message, repos.Conversation, repos.User,
			conversations, unread, notifications, rateLimit,
			publisher, dispatcher, cfg.Messaging, log,
		),
	}

	log.Info("Services initialized")

	return services
}
