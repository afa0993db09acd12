package service

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"campus_social/internal/config"
	"campus_social/internal/domain"
	"campus_social/internal/realtime"
	"campus_social/internal/repository"
	apperrors "campus_social/pkg/errors"
	"campus_social/pkg/logger"
)

const defaultMessagePageSize = 20

// MessagePage has no total; HasMore drives loading older pages.
type MessagePage struct {
	Messages []*domain.Message `json:"messages"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	HasMore  bool              `json:"has_more"`
}

type MessageService interface {
	// Send appends a message from sender to receiver, creating their
	// conversation on first contact. Notification and push are best-effort.
	Send(ctx context.Context, senderID, receiverID int64, content, messageType string) (*domain.Message, error)
	// GetMessages returns a page of the conversation and marks everything
	// addressed to the caller as read.
	GetMessages(ctx context.Context, callerID, conversationID int64, page, pageSize int) (*MessagePage, error)
	// Delete hides the caller's own message for both participants.
	Delete(ctx context.Context, callerID, messageID int64) error
}

type messageService struct {
	messageRepo      repository.MessageRepository
	conversationRepo repository.ConversationRepository
	userRepo         repository.UserRepository
	conversations    ConversationService
	unread           UnreadService
	notifications    NotificationService
	rateLimit        RateLimitService
	publisher        realtime.Publisher
	dispatcher       *Dispatcher
	cfg              config.MessagingConfig
	log              logger.Logger
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	conversationRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	conversations ConversationService,
	unread UnreadService,
	notifications NotificationService,
	rateLimit RateLimitService,
	publisher realtime.Publisher,
	dispatcher *Dispatcher,
	cfg config.MessagingConfig,
	log logger.Logger,
) MessageService {
	return &messageService{
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		conversations:    conversations,
		unread:           unread,
		notifications:    notifications,
		rateLimit:        rateLimit,
		publisher:        publisher,
		dispatcher:       dispatcher,
		cfg:              cfg,
		log:              log,
	}
}

func (s *messageService) Send(ctx context.Context, senderID, receiverID int64, content, messageType string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.Validation("message content is required")
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxContentLength {
		return nil, apperrors.Validationf("message content exceeds %d characters", s.cfg.MaxContentLength)
	}
	if messageType == "" {
		messageType = domain.MessageTypeText
	}
	if !domain.IsValidMessageType(messageType) {
		return nil, apperrors.Validationf("unsupported message type %q", messageType)
	}
	if receiverID <= 0 {
		return nil, apperrors.Validation("receiver id is required")
	}
	if senderID == receiverID {
		return nil, apperrors.SelfTarget("cannot send a message to yourself")
	}

	allowed, err := s.rateLimit.Allow(ctx, "send:"+strconv.FormatInt(senderID, 10), s.cfg.SendLimit, s.cfg.SendWindow)
	if err != nil {
		// Redis outage should not stop messaging.
		s.log.Warn("Send rate limit check failed", "error", err, "user_id", senderID)
	} else if !allowed {
		return nil, apperrors.RateLimited("too many messages, slow down")
	}

	active, err := s.userRepo.IsActive(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, apperrors.NotFound("receiver not found")
	}

	conv, err := s.conversations.GetOrCreate(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	message := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		Type:           messageType,
	}
	if err := s.messageRepo.Append(ctx, message); err != nil {
		return nil, err
	}

	s.unread.Invalidate(ctx, receiverID)

	sent := *message
	s.dispatcher.Go(ctx, "push:new_message", func(ctx context.Context) error {
		s.publisher.Push(ctx, sent.ReceiverID, domain.Envelope{Type: domain.EventNewMessage, Data: &sent})
		return nil
	})
	s.dispatcher.Go(ctx, "notify:message", func(ctx context.Context) error {
		_, err := s.notifications.NotifyNewMessage(ctx, &sent)
		return err
	})

	return message, nil
}

func (s *messageService) GetMessages(ctx context.Context, callerID, conversationID int64, page, pageSize int) (*MessagePage, error) {
	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(callerID) {
		return nil, apperrors.Forbidden("not a participant of this conversation")
	}

	flipped, err := s.messageRepo.MarkAllReadForParticipant(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if flipped > 0 {
		s.unread.Invalidate(ctx, callerID)

		receipt := domain.MessagesReadEvent{ConversationID: conversationID, ReaderID: callerID, Count: flipped}
		otherID := conv.OtherParticipant(callerID)
		s.dispatcher.Go(ctx, "push:messages_read", func(ctx context.Context) error {
			s.publisher.Push(ctx, otherID, domain.Envelope{Type: domain.EventMessagesRead, Data: receipt})
			return nil
		})
	}

	page, pageSize, offset := domain.NormalizePage(page, pageSize, defaultMessagePageSize, s.cfg.MaxPageSize)
	messages, err := s.messageRepo.ListPage(ctx, conversationID, pageSize, offset)
	if err != nil {
		return nil, err
	}

	return &MessagePage{
		Messages: messages,
		Page:     page,
		PageSize: pageSize,
		HasMore:  len(messages) == pageSize,
	}, nil
}

func (s *messageService) Delete(ctx context.Context, callerID, messageID int64) error {
	if messageID <= 0 {
		return apperrors.Validation("invalid message id")
	}

	deleted, err := s.messageRepo.SoftDelete(ctx, messageID, callerID)
	if err != nil {
		return err
	}
	if !deleted.IsRead {
		s.unread.Invalidate(ctx, deleted.ReceiverID)
	}

	event := domain.MessageDeletedEvent{ConversationID: deleted.ConversationID, MessageID: deleted.ID}
	s.dispatcher.Go(ctx, "push:message_deleted", func(ctx context.Context) error {
		env := domain.Envelope{Type: domain.EventMessageDeleted, Data: event}
		s.publisher.Push(ctx, deleted.ReceiverID, env)
		s.publisher.Push(ctx, deleted.SenderID, env)
		return nil
	})

	return nil
}
