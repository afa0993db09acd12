package domain

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// NotificationEvent is a domain event raised by a collaborator. Events are only
// built through the New*Event constructors, which fix the type and the target.
type NotificationEvent struct {
	RecipientUserID int64   `validate:"required,gt=0"`
	Type            string  `validate:"required,notification_type"`
	Title           string  `validate:"required,max=200"`
	Content         string  `validate:"required,max=2000"`
	ActorUserID     *int64  `validate:"omitempty,gt=0"`
	TargetType      string  `validate:"required,max=32"`
	TargetID        int64   `validate:"required,gt=0"`
	Link            *string `validate:"omitempty,max=512"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func eventValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("notification_type", func(fl validator.FieldLevel) bool {
			return IsValidNotificationType(fl.Field().String())
		})
	})
	return validate
}

// Validate checks the required-field set of the event.
func (e *NotificationEvent) Validate() error {
	e.Title = strings.TrimSpace(e.Title)
	e.Content = strings.TrimSpace(e.Content)
	return eventValidator().Struct(e)
}

// SelfInflicted reports whether the actor would be notified about their own action.
// System notifications are never suppressed.
func (e *NotificationEvent) SelfInflicted() bool {
	if e.Type == NotificationTypeSystem || e.ActorUserID == nil {
		return false
	}
	return *e.ActorUserID == e.RecipientUserID
}

func (e *NotificationEvent) ToNotification() *Notification {
	return &Notification{
		RecipientUserID: e.RecipientUserID,
		Type:            e.Type,
		Title:           e.Title,
		Content:         e.Content,
		ActorUserID:     e.ActorUserID,
		TargetType:      e.TargetType,
		TargetID:        e.TargetID,
		Link:            e.Link,
	}
}

func actor(id int64) *int64 {
	return &id
}

func NewLikeEvent(recipientID, actorID int64, targetType string, targetID int64, actorName string) NotificationEvent {
	return NotificationEvent{
		RecipientUserID: recipientID,
		Type:            NotificationTypeLike,
		Title:           "New like",
		Content:         actorName + " liked your " + targetType,
		ActorUserID:     actor(actorID),
		TargetType:      targetType,
		TargetID:        targetID,
	}
}

func NewCommentEvent(recipientID, actorID, postID int64, actorName, excerpt string) NotificationEvent {
	return NotificationEvent{
		RecipientUserID: recipientID,
		Type:            NotificationTypeComment,
		Title:           actorName + " commented on your post",
		Content:         excerpt,
		ActorUserID:     actor(actorID),
		TargetType:      TargetTypePost,
		TargetID:        postID,
	}
}

func NewReplyEvent(recipientID, actorID, commentID int64, actorName, excerpt string) NotificationEvent {
	return NotificationEvent{
		RecipientUserID: recipientID,
		Type:            NotificationTypeReply,
		Title:           actorName + " replied to your comment",
		Content:         excerpt,
		ActorUserID:     actor(actorID),
		TargetType:      TargetTypeComment,
		TargetID:        commentID,
	}
}

func NewFollowEvent(recipientID, actorID int64, actorName string) NotificationEvent {
	return NotificationEvent{
		RecipientUserID: recipientID,
		Type:            NotificationTypeFollow,
		Title:           "New follower",
		Content:         actorName + " started following you",
		ActorUserID:     actor(actorID),
		TargetType:      TargetTypeUser,
		TargetID:        actorID,
	}
}

// NewActivityEvent covers reminders, starts and cancellations. kind must be one
// of the activity_* notification types.
func NewActivityEvent(recipientID, activityID int64, kind, title, content string) NotificationEvent {
	return NotificationEvent{
		RecipientUserID: recipientID,
		Type:            kind,
		Title:           title,
		Content:         content,
		TargetType:      TargetTypeActivity,
		TargetID:        activityID,
	}
}

func NewMessageEvent(recipientID, senderID, conversationID int64, senderName, summary string) NotificationEvent {
	return NotificationEvent{
		RecipientUserID: recipientID,
		Type:            NotificationTypeMessage,
		Title:           senderName + " sent you a message",
		Content:         summary,
		ActorUserID:     actor(senderID),
		TargetType:      TargetTypeConversation,
		TargetID:        conversationID,
	}
}

// NewSystemEvent addresses one user. TargetID is the recipient so the required
// target is always present.
func NewSystemEvent(recipientID int64, title, content string, link *string) NotificationEvent {
	return NotificationEvent{
		RecipientUserID: recipientID,
		Type:            NotificationTypeSystem,
		Title:           title,
		Content:         content,
		TargetType:      TargetTypeSystem,
		TargetID:        recipientID,
		Link:            link,
	}
}
