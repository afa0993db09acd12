package domain

import (
	"time"
)

type Notification struct {
	ID              int64      `json:"id"`
	RecipientUserID int64      `json:"recipient_user_id"`
	Type            string     `json:"type"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	ActorUserID     *int64     `json:"actor_user_id,omitempty"`
	TargetType      string     `json:"target_type"`
	TargetID        int64      `json:"target_id"`
	Link            *string    `json:"link,omitempty"`
	IsRead          bool       `json:"is_read"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

const (
	NotificationTypeLike              = "like"
	NotificationTypeComment           = "comment"
	NotificationTypeReply             = "reply"
	NotificationTypeFollow            = "follow"
	NotificationTypeActivityReminder  = "activity_reminder"
	NotificationTypeActivityStarted   = "activity_started"
	NotificationTypeActivityCancelled = "activity_cancelled"
	NotificationTypeMessage           = "message"
	NotificationTypeSystem            = "system"
)

const (
	TargetTypePost         = "post"
	TargetTypeComment      = "comment"
	TargetTypeUser         = "user"
	TargetTypeActivity     = "activity"
	TargetTypeConversation = "conversation"
	TargetTypeSystem       = "system"
)

// dedupTypes are notification types where a repeated event from the same actor
// on the same target collapses into the existing unread notification.
var dedupTypes = map[string]bool{
	NotificationTypeLike:    true,
	NotificationTypeFollow:  true,
	NotificationTypeMessage: true,
}

func IsValidNotificationType(t string) bool {
	switch t {
	case NotificationTypeLike, NotificationTypeComment, NotificationTypeReply, NotificationTypeFollow,
		NotificationTypeActivityReminder, NotificationTypeActivityStarted, NotificationTypeActivityCancelled,
		NotificationTypeMessage, NotificationTypeSystem:
		return true
	}
	return false
}

func IsDeduplicated(t string) bool {
	return dedupTypes[t]
}

// NotificationListFilter selects a page of a user's notifications.
type NotificationListFilter struct {
	Page       int
	Limit      int
	UnreadOnly bool
	Type       string
}

// SystemBroadcast is a system notification addressed to every active user.
type SystemBroadcast struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Link    *string `json:"link,omitempty"`
}
