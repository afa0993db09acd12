package domain

import (
	"time"
)

// AuditLog records a privileged action: admin broadcasts and maintenance runs.
type AuditLog struct {
	ID          int64                  `json:"id"`
	EventTime   time.Time              `json:"event_time"`
	ActorUserID *int64                 `json:"actor_user_id,omitempty"`
	ActorRole   string                 `json:"actor_role"`
	EventType   string                 `json:"event_type"`
	Payload     map[string]interface{} `json:"payload"`
}

const (
	ActorRoleAdmin  = "admin"
	ActorRoleSystem = "system"
)

const (
	EventTypeSystemNotificationSent   = "SYSTEM_NOTIFICATION_SENT"
	EventTypeSystemBroadcastQueued    = "SYSTEM_BROADCAST_QUEUED"
	EventTypeSystemBroadcastSent      = "SYSTEM_BROADCAST_SENT"
	EventTypeUnreadRepaired           = "UNREAD_REPAIRED"
	EventTypeReadNotificationsCleared = "READ_NOTIFICATIONS_CLEARED"
)
