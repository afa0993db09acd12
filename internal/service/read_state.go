package service

import (
	"context"

	"campus_social/internal/config"
	"campus_social/internal/domain"
	"campus_social/internal/repository"
	apperrors "campus_social/pkg/errors"
	"campus_social/pkg/logger"
)

const (
	defaultNotificationPageSize = 20
	maxBatchDelete              = 100
)

type NotificationPage struct {
	Notifications []*domain.Notification `json:"notifications"`
	Pagination    domain.Pagination      `json:"pagination"`
}

// ReadStateService owns the read/unread lifecycle of a user's notifications.
// Every operation is scoped to the caller; ids owned by someone else match nothing.
type ReadStateService interface {
	List(ctx context.Context, userID int64, filter domain.NotificationListFilter) (*NotificationPage, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
	// MarkRead is idempotent: an already-read notification is returned unchanged.
	MarkRead(ctx context.Context, notificationID, userID int64) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	DeleteOne(ctx context.Context, notificationID, userID int64) error
	DeleteMany(ctx context.Context, ids []int64, userID int64) (int64, error)
	ClearRead(ctx context.Context, userID int64) (int64, error)
}

type readStateService struct {
	notificationRepo repository.NotificationRepository
	maxPageSize      int
	log              logger.Logger
}

func NewReadStateService(notificationRepo repository.NotificationRepository, cfg config.NotificationConfig, log logger.Logger) ReadStateService {
	return &readStateService{
		notificationRepo: notificationRepo,
		maxPageSize:      cfg.MaxPageSize,
		log:              log,
	}
}

func (s *readStateService) List(ctx context.Context, userID int64, filter domain.NotificationListFilter) (*NotificationPage, error) {
	if filter.Type != "" && !domain.IsValidNotificationType(filter.Type) {
		return nil, apperrors.Validationf("unknown notification type %q", filter.Type)
	}
	filter.Page, filter.Limit, _ = domain.NormalizePage(filter.Page, filter.Limit, defaultNotificationPageSize, s.maxPageSize)

	notifications, total, err := s.notificationRepo.List(ctx, userID, filter)
	if err != nil {
		return nil, err
	}

	return &NotificationPage{
		Notifications: notifications,
		Pagination:    domain.NewPagination(filter.Page, filter.Limit, total),
	}, nil
}

func (s *readStateService) CountUnread(ctx context.Context, userID int64) (int, error) {
	return s.notificationRepo.CountUnread(ctx, userID)
}

func (s *readStateService) MarkRead(ctx context.Context, notificationID, userID int64) (*domain.Notification, error) {
	if notificationID <= 0 {
		return nil, apperrors.Validation("invalid notification id")
	}
	return s.notificationRepo.MarkRead(ctx, notificationID, userID)
}

func (s *readStateService) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	count, err := s.notificationRepo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.log.Debug("Marked all notifications read", "user_id", userID, "count", count)
	return count, nil
}

func (s *readStateService) DeleteOne(ctx context.Context, notificationID, userID int64) error {
	if notificationID <= 0 {
		return apperrors.Validation("invalid notification id")
	}
	_, err := s.notificationRepo.DeleteMany(ctx, []int64{notificationID}, userID)
	return err
}

func (s *readStateService) DeleteMany(ctx context.Context, ids []int64, userID int64) (int64, error) {
	if len(ids) == 0 {
		return 0, apperrors.Validation("ids must not be empty")
	}
	if len(ids) > maxBatchDelete {
		return 0, apperrors.Validationf("at most %d ids per request", maxBatchDelete)
	}
	return s.notificationRepo.DeleteMany(ctx, ids, userID)
}

func (s *readStateService) ClearRead(ctx context.Context, userID int64) (int64, error) {
	count, err := s.notificationRepo.ClearRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.log.Info("Cleared read notifications", "user_id", userID, "count", count)
	return count, nil
}
