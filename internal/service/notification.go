package service

import (
	"context"
	"strings"

	"campus_social/internal/domain"
	"campus_social/internal/realtime"
	"campus_social/internal/repository"
	apperrors "campus_social/pkg/errors"
	"campus_social/pkg/logger"
)

const fallbackActorName = "Someone"

// SystemBroadcaster performs the full fan-out of a system broadcast.
type SystemBroadcaster interface {
	Broadcast(ctx context.Context, broadcast domain.SystemBroadcast) (int64, error)
}

// BroadcastQueue hands a system broadcast off to run outside the request.
type BroadcastQueue interface {
	EnqueueSystemBroadcast(ctx context.Context, broadcast domain.SystemBroadcast) error
}

// NotificationService is the contract every event-originating feature calls into.
// Notify* methods return the error to the caller; Emit is the fire-and-forget form.
type NotificationService interface {
	// Notify validates and stores the event. A self-inflicted event returns nil, nil.
	Notify(ctx context.Context, event domain.NotificationEvent) (*domain.Notification, error)
	// Emit runs Notify as a best-effort side effect. It never fails the caller.
	Emit(ctx context.Context, event domain.NotificationEvent)

	NotifyLike(ctx context.Context, recipientID, actorID int64, targetType string, targetID int64) (*domain.Notification, error)
	NotifyComment(ctx context.Context, recipientID, actorID, postID int64, excerpt string) (*domain.Notification, error)
	NotifyReply(ctx context.Context, recipientID, actorID, commentID int64, excerpt string) (*domain.Notification, error)
	NotifyFollow(ctx context.Context, recipientID, actorID int64) (*domain.Notification, error)
	NotifyActivityReminder(ctx context.Context, recipientID, activityID int64, title, content string) (*domain.Notification, error)
	NotifyActivity(ctx context.Context, kind string, recipientID, activityID int64, title, content string) (*domain.Notification, error)
	NotifyNewMessage(ctx context.Context, message *domain.Message) (*domain.Notification, error)
	// NotifySystem targets one user, or every active user when recipientID is 0.
	// The fan-out case is queued and returns a nil notification.
	NotifySystem(ctx context.Context, recipientID int64, broadcast domain.SystemBroadcast) (*domain.Notification, error)
}

type notificationService struct {
	notificationRepo repository.NotificationRepository
	userRepo         repository.UserRepository
	publisher        realtime.Publisher
	queue            BroadcastQueue
	dispatcher       *Dispatcher
	log              logger.Logger
}

func NewNotificationService(
	notificationRepo repository.NotificationRepository,
	userRepo repository.UserRepository,
	publisher realtime.Publisher,
	queue BroadcastQueue,
	dispatcher *Dispatcher,
	log logger.Logger,
) NotificationService {
	return &notificationService{
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		publisher:        publisher,
		queue:            queue,
		dispatcher:       dispatcher,
		log:              log,
	}
}

func (s *notificationService) Notify(ctx context.Context, event domain.NotificationEvent) (*domain.Notification, error) {
	if err := event.Validate(); err != nil {
		return nil, apperrors.Validationf("invalid notification event: %v", err)
	}
	if event.SelfInflicted() {
		s.log.Debug("Suppressed self notification", "type", event.Type, "user_id", event.RecipientUserID)
		return nil, nil
	}

	n := event.ToNotification()
	created, err := s.notificationRepo.Create(ctx, n)
	if err != nil {
		return nil, err
	}
	if !created {
		s.log.Debug("Refreshed unread notification", "notification_id", n.ID, "type", n.Type)
	}

	s.publisher.Push(ctx, n.RecipientUserID, domain.Envelope{Type: domain.EventNewNotification, Data: n})
	return n, nil
}

func (s *notificationService) Emit(ctx context.Context, event domain.NotificationEvent) {
	s.dispatcher.Go(ctx, "notify:"+event.Type, func(ctx context.Context) error {
		_, err := s.Notify(ctx, event)
		return err
	})
}

func (s *notificationService) NotifyLike(ctx context.Context, recipientID, actorID int64, targetType string, targetID int64) (*domain.Notification, error) {
	return s.Notify(ctx, domain.NewLikeEvent(recipientID, actorID, targetType, targetID, s.actorName(ctx, actorID)))
}

func (s *notificationService) NotifyComment(ctx context.Context, recipientID, actorID, postID int64, excerpt string) (*domain.Notification, error) {
	return s.Notify(ctx, domain.NewCommentEvent(recipientID, actorID, postID, s.actorName(ctx, actorID), excerpt))
}

func (s *notificationService) NotifyReply(ctx context.Context, recipientID, actorID, commentID int64, excerpt string) (*domain.Notification, error) {
	return s.Notify(ctx, domain.NewReplyEvent(recipientID, actorID, commentID, s.actorName(ctx, actorID), excerpt))
}

func (s *notificationService) NotifyFollow(ctx context.Context, recipientID, actorID int64) (*domain.Notification, error) {
	return s.Notify(ctx, domain.NewFollowEvent(recipientID, actorID, s.actorName(ctx, actorID)))
}

func (s *notificationService) NotifyActivityReminder(ctx context.Context, recipientID, activityID int64, title, content string) (*domain.Notification, error) {
	return s.NotifyActivity(ctx, domain.NotificationTypeActivityReminder, recipientID, activityID, title, content)
}

func (s *notificationService) NotifyActivity(ctx context.Context, kind string, recipientID, activityID int64, title, content string) (*domain.Notification, error) {
	switch kind {
	case domain.NotificationTypeActivityReminder, domain.NotificationTypeActivityStarted, domain.NotificationTypeActivityCancelled:
	default:
		return nil, apperrors.Validationf("unsupported activity notification type %q", kind)
	}
	return s.Notify(ctx, domain.NewActivityEvent(recipientID, activityID, kind, title, content))
}

func (s *notificationService) NotifyNewMessage(ctx context.Context, message *domain.Message) (*domain.Notification, error) {
	event := domain.NewMessageEvent(
		message.ReceiverID, message.SenderID, message.ConversationID,
		s.actorName(ctx, message.SenderID), message.Summary(),
	)
	return s.Notify(ctx, event)
}

func (s *notificationService) NotifySystem(ctx context.Context, recipientID int64, broadcast domain.SystemBroadcast) (*domain.Notification, error) {
	broadcast.Title = strings.TrimSpace(broadcast.Title)
	broadcast.Content = strings.TrimSpace(broadcast.Content)

	if recipientID > 0 {
		return s.Notify(ctx, domain.NewSystemEvent(recipientID, broadcast.Title, broadcast.Content, broadcast.Link))
	}
	if recipientID < 0 {
		return nil, apperrors.Validation("recipient id must be positive")
	}

	if broadcast.Title == "" || broadcast.Content == "" {
		return nil, apperrors.Validation("title and content are required")
	}
	if err := s.queue.EnqueueSystemBroadcast(ctx, broadcast); err != nil {
		return nil, apperrors.Internal("failed to queue system broadcast", err)
	}
	s.log.Info("System broadcast queued", "title", broadcast.Title)
	return nil, nil
}

func (s *notificationService) actorName(ctx context.Context, actorID int64) string {
	profiles, err := s.userRepo.GetProfiles(ctx, []int64{actorID})
	if err != nil {
		s.log.Warn("Failed to load actor profile", "error", err, "user_id", actorID)
		return fallbackActorName
	}
	if p, ok := profiles[actorID]; ok && p.Nickname != "" {
		return p.Nickname
	}
	return fallbackActorName
}

type inlineBroadcastQueue struct {
	dispatcher  *Dispatcher
	broadcaster SystemBroadcaster
}

// NewInlineBroadcastQueue runs broadcasts in-process through the dispatcher.
// It is used when the durable job queue is disabled.
func NewInlineBroadcastQueue(dispatcher *Dispatcher, broadcaster SystemBroadcaster) BroadcastQueue {
	return &inlineBroadcastQueue{dispatcher: dispatcher, broadcaster: broadcaster}
}

func (q *inlineBroadcastQueue) EnqueueSystemBroadcast(ctx context.Context, broadcast domain.SystemBroadcast) error {
	q.dispatcher.GoWithin(ctx, "system_broadcast", 0, func(ctx context.Context) error {
		_, err := q.broadcaster.Broadcast(ctx, broadcast)
		return err
	})
	return nil
}
