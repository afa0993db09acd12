package service

import (
	"context"
	"time"

	"campus_social/internal/domain"
	"campus_social/internal/repository"
	"campus_social/pkg/logger"
)

type AuditService interface {
	// LogEvent records a privileged action. A failed write is logged and
	// dropped: auditing never fails the action it describes.
	LogEvent(ctx context.Context, actorUserID *int64, actorRole, eventType string, payload map[string]interface{})
	Recent(ctx context.Context, eventType string, limit int) ([]*domain.AuditLog, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		log:       log,
	}
}

func (s *auditService) LogEvent(ctx context.Context, actorUserID *int64, actorRole, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}

	auditLog := &domain.AuditLog{
		EventTime:   time.Now().UTC(),
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		EventType:   eventType,
		Payload:     payload,
	}

	if err := s.auditRepo.CreateLog(ctx, auditLog); err != nil {
		s.log.Warn("Audit event dropped", "error", err, "event_type", eventType)
	}
}

func (s *auditService) Recent(ctx context.Context, eventType string, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.auditRepo.ListRecent(ctx, eventType, limit)
}
