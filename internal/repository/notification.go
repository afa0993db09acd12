package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus_social/internal/domain"
	apperrors "campus_social/pkg/errors"
	"campus_social/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepository interface {
	// Create inserts n. For deduplicated types an existing unread notification
	// with the same recipient, type, actor and target is refreshed instead, and
	// created is false.
	Create(ctx context.Context, n *domain.Notification) (created bool, err error)
	// CreateSystemBatch inserts one system notification per recipient in a single statement.
	CreateSystemBatch(ctx context.Context, recipientIDs []int64, broadcast domain.SystemBroadcast) (int64, error)
	GetForUser(ctx context.Context, id, userID int64) (*domain.Notification, error)
	List(ctx context.Context, userID int64, filter domain.NotificationListFilter) ([]*domain.Notification, int, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, id, userID int64) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	DeleteMany(ctx context.Context, ids []int64, userID int64) (int64, error)
	ClearRead(ctx context.Context, userID int64) (int64, error)
}

type notificationRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, log logger.Logger) NotificationRepository {
	return &notificationRepository{db: db, log: log}
}

const notificationColumns = `id, recipient_user_id, type, title, content, actor_user_id, target_type, target_id,
	link, is_read, read_at, created_at`

func scanNotification(row scanner) (*domain.Notification, error) {
	n := &domain.Notification{}
	err := row.Scan(
		&n.ID, &n.RecipientUserID, &n.Type, &n.Title, &n.Content, &n.ActorUserID, &n.TargetType, &n.TargetID,
		&n.Link, &n.IsRead, &n.ReadAt, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) (bool, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (recipient_user_id, type, title, content, actor_user_id, target_type, target_id, link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if domain.IsDeduplicated(n.Type) {
		query += `
		ON CONFLICT (recipient_user_id, type, actor_user_id, target_type, target_id)
		    WHERE is_read = FALSE AND type IN ('like', 'follow', 'message')
		DO UPDATE SET title = EXCLUDED.title, content = EXCLUDED.content, created_at = EXCLUDED.created_at
		`
	}
	query += ` RETURNING ` + notificationColumns + `, (xmax = 0) AS inserted`

	var inserted bool
	stored := &domain.Notification{}
	err := r.db.QueryRow(ctx, query,
		n.RecipientUserID, n.Type, n.Title, n.Content, n.ActorUserID, n.TargetType, n.TargetID, n.Link, n.CreatedAt,
	).Scan(
		&stored.ID, &stored.RecipientUserID, &stored.Type, &stored.Title, &stored.Content, &stored.ActorUserID,
		&stored.TargetType, &stored.TargetID, &stored.Link, &stored.IsRead, &stored.ReadAt, &stored.CreatedAt,
		&inserted,
	)
	if err != nil {
		r.log.Error("Failed to create notification", "error", err, "type", n.Type)
		return false, fmt.Errorf("create notification: %w", err)
	}

	*n = *stored
	return inserted, nil
}

func (r *notificationRepository) CreateSystemBatch(ctx context.Context, recipientIDs []int64, broadcast domain.SystemBroadcast) (int64, error) {
	if len(recipientIDs) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO notifications (recipient_user_id, type, title, content, target_type, target_id, link, created_at)
		SELECT r, $2::varchar, $3::varchar, $4::text, $5::varchar, r, $6::text, $7::timestamptz
		FROM unnest($1::bigint[]) AS r
	`
	tag, err := r.db.Exec(ctx, query,
		recipientIDs, domain.NotificationTypeSystem, broadcast.Title, broadcast.Content,
		domain.TargetTypeSystem, broadcast.Link, time.Now().UTC(),
	)
	if err != nil {
		r.log.Error("Failed to insert system notification batch", "error", err, "size", len(recipientIDs))
		return 0, fmt.Errorf("insert system batch: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *notificationRepository) GetForUser(ctx context.Context, id, userID int64) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1 AND recipient_user_id = $2`

	n, err := scanNotification(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("notification not found")
		}
		r.log.Error("Failed to get notification", "error", err)
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (r *notificationRepository) List(ctx context.Context, userID int64, filter domain.NotificationListFilter) ([]*domain.Notification, int, error) {
	where := []string{"recipient_user_id = $1"}
	args := []any{userID}
	if filter.UnreadOnly {
		where = append(where, "is_read = FALSE")
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE `+whereSQL, args...).Scan(&total); err != nil {
		r.log.Error("Failed to count notifications", "error", err)
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	args = append(args, filter.Limit, offset)
	query := fmt.Sprintf(`
		SELECT %s FROM notifications
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, notificationColumns, whereSQL, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to list notifications", "error", err)
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]*domain.Notification, 0, filter.Limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			r.log.Error("Failed to scan notification", "error", err)
			return nil, 0, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate notifications: %w", err)
	}

	return notifications, total, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE recipient_user_id = $1 AND is_read = FALSE`, userID).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count unread notifications", "error", err)
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID int64) (*domain.Notification, error) {
	query := `
		UPDATE notifications SET is_read = TRUE, read_at = $3
		WHERE id = $1 AND recipient_user_id = $2 AND is_read = FALSE
		RETURNING ` + notificationColumns

	n, err := scanNotification(r.db.QueryRow(ctx, query, id, userID, time.Now().UTC()))
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.log.Error("Failed to mark notification read", "error", err)
		return nil, fmt.Errorf("mark notification read: %w", err)
	}

	// Already read, or not ours.
	return r.GetForUser(ctx, id, userID)
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = $2
		WHERE recipient_user_id = $1 AND is_read = FALSE
	`, userID, time.Now().UTC())
	if err != nil {
		r.log.Error("Failed to mark all notifications read", "error", err)
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *notificationRepository) DeleteMany(ctx context.Context, ids []int64, userID int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE id = ANY($1) AND recipient_user_id = $2`, ids, userID)
	if err != nil {
		r.log.Error("Failed to delete notifications", "error", err)
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *notificationRepository) ClearRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE recipient_user_id = $1 AND is_read = TRUE`, userID)
	if err != nil {
		r.log.Error("Failed to clear read notifications", "error", err)
		return 0, fmt.Errorf("clear read notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
