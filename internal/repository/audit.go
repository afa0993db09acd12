package repository

import (
	"context"

	"campus_social/internal/domain"
	"campus_social/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepository interface {
	CreateLog(ctx context.Context, log *domain.AuditLog) error
	ListRecent(ctx context.Context, eventType string, limit int) ([]*domain.AuditLog, error)
}

type auditRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewAuditRepository(db *pgxpool.Pool, log logger.Logger) AuditRepository {
	return &auditRepository{db: db, log: log}
}

func (r *auditRepository) CreateLog(ctx context.Context, auditLog *domain.AuditLog) error {
	query := `
		INSERT INTO audit_log (event_time, actor_user_id, actor_role, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		auditLog.EventTime, auditLog.ActorUserID, auditLog.ActorRole, auditLog.EventType, auditLog.Payload,
	).Scan(&auditLog.ID)
	if err != nil {
		r.log.Error("Failed to create audit log", "error", err, "event_type", auditLog.EventType)
		return err
	}

	return nil
}

// ListRecent returns the newest entries first. An empty eventType matches all.
func (r *auditRepository) ListRecent(ctx context.Context, eventType string, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, event_time, actor_user_id, actor_role, event_type, payload
		FROM audit_log
		WHERE $1 = '' OR event_type = $1
		ORDER BY event_time DESC, id DESC
		LIMIT $2
	`, eventType, limit)
	if err != nil {
		r.log.Error("Failed to list audit log", "error", err)
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.AuditLog
	for rows.Next() {
		entry := &domain.AuditLog{}
		if err := rows.Scan(&entry.ID, &entry.EventTime, &entry.ActorUserID, &entry.ActorRole, &entry.EventType, &entry.Payload); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
