package repository

import (
	"campus_social/internal/config"
	"campus_social/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Repositories struct {
	Conversation ConversationRepository
	Message      MessageRepository
	Notification NotificationRepository
	User         UserRepository
	UnreadCache  UnreadCache
	RateLimit    RateLimitRepository
	Audit        AuditRepository
}

func NewRepositories(db *pgxpool.Pool, redis *redis.Client, cfg *config.Config, log logger.Logger) *Repositories {
	repos := &Repositories{
		Conversation: NewConversationRepository(db, log),
		Message:      NewMessageRepository(db, log),
		Notification: NewNotificationRepository(db, log),
		User:         NewUserRepository(db, log),
		UnreadCache:  NewUnreadCache(redis, cfg.Messaging.UnreadCacheTTL, log),
		RateLimit:    NewRateLimitRepository(redis, log),
		Audit:        NewAuditRepository(db, log),
	}

	log.Info("Repositories initialized")

	return repos
}
