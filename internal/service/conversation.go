package service

import (
	"context"
	"errors"

	"campus_social/internal/config"
	"campus_social/internal/domain"
	"campus_social/internal/repository"
	apperrors "campus_social/pkg/errors"
	"campus_social/pkg/logger"
)

const defaultConversationPageSize = 20

type ConversationPage struct {
	Conversations []*domain.ConversationSummary `json:"conversations"`
	Pagination    domain.Pagination             `json:"pagination"`
}

type ConversationService interface {
	// GetOrCreate resolves the single conversation of an unordered pair.
	// GetOrCreate(a, b) and GetOrCreate(b, a) always return the same row.
	GetOrCreate(ctx context.Context, userA, userB int64) (*domain.Conversation, error)
	// Open is GetOrCreate for a caller opening a chat with another user.
	Open(ctx context.Context, callerID, otherID int64) (*domain.ConversationSummary, error)
	List(ctx context.Context, userID int64, page, pageSize int) (*ConversationPage, error)
}

type conversationService struct {
	conversationRepo repository.ConversationRepository
	userRepo         repository.UserRepository
	maxPageSize      int
	log              logger.Logger
}

func NewConversationService(conversationRepo repository.ConversationRepository, userRepo repository.UserRepository, cfg config.MessagingConfig, log logger.Logger) ConversationService {
	return &conversationService{
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		maxPageSize:      cfg.MaxPageSize,
		log:              log,
	}
}

func (s *conversationService) GetOrCreate(ctx context.Context, userA, userB int64) (*domain.Conversation, error) {
	if userA <= 0 || userB <= 0 {
		return nil, apperrors.Validation("user id must be positive")
	}
	if userA == userB {
		return nil, apperrors.SelfTarget("cannot open a conversation with yourself")
	}

	low, high := domain.CanonicalPair(userA, userB)

	conv, err := s.conversationRepo.GetByPair(ctx, low, high)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	conv = &domain.Conversation{ParticipantLow: low, ParticipantHigh: high}
	err = s.conversationRepo.Create(ctx, conv)
	if err == nil {
		s.log.Info("Conversation created", "conversation_id", conv.ID, "low", low, "high", high)
		return conv, nil
	}
	if !errors.Is(err, apperrors.ErrConflict) {
		return nil, err
	}

	// Lost the insert race; the winner's row is the canonical one.
	return s.conversationRepo.GetByPair(ctx, low, high)
}

func (s *conversationService) Open(ctx context.Context, callerID, otherID int64) (*domain.ConversationSummary, error) {
	if callerID != otherID && otherID > 0 {
		active, err := s.userRepo.IsActive(ctx, otherID)
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, apperrors.NotFound("user not found")
		}
	}

	conv, err := s.GetOrCreate(ctx, callerID, otherID)
	if err != nil {
		return nil, err
	}

	profiles, err := s.userRepo.GetProfiles(ctx, []int64{otherID})
	if err != nil {
		return nil, err
	}

	return &domain.ConversationSummary{
		Conversation: conv,
		OtherUser:    profiles[otherID],
		UnreadCount:  conv.UnreadFor(callerID),
	}, nil
}

func (s *conversationService) List(ctx context.Context, userID int64, page, pageSize int) (*ConversationPage, error) {
	page, pageSize, offset := domain.NormalizePage(page, pageSize, defaultConversationPageSize, s.maxPageSize)

	convs, total, err := s.conversationRepo.ListForUser(ctx, userID, pageSize, offset)
	if err != nil {
		return nil, err
	}

	otherIDs := make([]int64, 0, len(convs))
	for _, conv := range convs {
		otherIDs = append(otherIDs, conv.OtherParticipant(userID))
	}

	profiles, err := s.userRepo.GetProfiles(ctx, otherIDs)
	if err != nil {
		return nil, err
	}

	summaries := make([]*domain.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		otherID := conv.OtherParticipant(userID)
		other, ok := profiles[otherID]
		if !ok {
			// Account removed upstream; keep the thread visible.
			other = &domain.UserProfile{ID: otherID}
		}
		summaries = append(summaries, &domain.ConversationSummary{
			Conversation: conv,
			OtherUser:    other,
			UnreadCount:  conv.UnreadFor(userID),
		})
	}

	return &ConversationPage{
		Conversations: summaries,
		Pagination:    domain.NewPagination(page, pageSize, total),
	}, nil
}
