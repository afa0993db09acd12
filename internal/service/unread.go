package service

import (
	"context"

	"campus_social/internal/domain"
	"campus_social/internal/repository"
	"campus_social/pkg/logger"
)

const repairBatchSize = 500

type UnreadService interface {
	// TotalForUser sums the caller's side of every conversation counter.
	TotalForUser(ctx context.Context, userID int64) (int, error)
	// Invalidate drops cached totals. Cache failures are logged, not returned.
	Invalidate(ctx context.Context, userIDs ...int64)
	// Repair rebuilds one conversation's counters from message rows.
	Repair(ctx context.Context, conversationID int64) (*domain.Conversation, error)
	// RepairAll runs Repair over every conversation and returns how many were visited.
	RepairAll(ctx context.Context) (int, error)
}

type unreadService struct {
	conversationRepo repository.ConversationRepository
	cache            repository.UnreadCache
	log              logger.Logger
}

func NewUnreadService(conversationRepo repository.ConversationRepository, cache repository.UnreadCache, log logger.Logger) UnreadService {
	return &unreadService{
		conversationRepo: conversationRepo,
		cache:            cache,
		log:              log,
	}
}

func (s *unreadService) TotalForUser(ctx context.Context, userID int64) (int, error) {
	if total, ok, err := s.cache.Get(ctx, userID); err != nil {
		s.log.Warn("Unread cache read failed", "error", err, "user_id", userID)
	} else if ok {
		return total, nil
	}

	// Read the version before the sum so an invalidation racing the fill
	// makes the write below a no-op.
	version, verErr := s.cache.Version(ctx, userID)
	if verErr != nil {
		s.log.Warn("Unread cache version read failed", "error", verErr, "user_id", userID)
	}

	total, err := s.conversationRepo.SumUnreadForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	if verErr == nil {
		if written, err := s.cache.SetIfVersion(ctx, userID, total, version); err != nil {
			s.log.Warn("Unread cache write failed", "error", err, "user_id", userID)
		} else if !written {
			s.log.Debug("Unread cache fill skipped after invalidation", "user_id", userID)
		}
	}
	return total, nil
}

func (s *unreadService) Invalidate(ctx context.Context, userIDs ...int64) {
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		s.log.Warn("Unread cache invalidation failed", "error", err, "user_ids", userIDs)
	}
}

func (s *unreadService) Repair(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	conv, err := s.conversationRepo.RecomputeUnread(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.Invalidate(ctx, conv.ParticipantLow, conv.ParticipantHigh)
	return conv, nil
}

func (s *unreadService) RepairAll(ctx context.Context) (int, error) {
	var (
		after   int64
		visited int
	)
	for {
		ids, err := s.conversationRepo.ListIDsAfter(ctx, after, repairBatchSize)
		if err != nil {
			return visited, err
		}
		for _, id := range ids {
			if _, err := s.Repair(ctx, id); err != nil {
				return visited, err
			}
			visited++
		}
		if len(ids) < repairBatchSize {
			return visited, nil
		}
		after = ids[len(ids)-1]
	}
}
