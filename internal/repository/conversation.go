package repository

import (
	"context"
	"errors"
	"fmt"

	"campus_social/internal/domain"
	apperrors "campus_social/pkg/errors"
	"campus_social/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConversationRepository interface {
	// Create inserts a conversation with zeroed counters. A concurrent insert of
	// the same pair yields an apperrors.ErrConflict error.
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByPair(ctx context.Context, low, high int64) (*domain.Conversation, error)
	GetByID(ctx context.Context, id int64) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*domain.Conversation, int, error)
	SumUnreadForUser(ctx context.Context, userID int64) (int, error)
	// RecomputeUnread rebuilds both counters from message rows. Maintenance only.
	RecomputeUnread(ctx context.Context, id int64) (*domain.Conversation, error)
	ListIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error)
}

type conversationRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewConversationRepository(db *pgxpool.Pool, log logger.Logger) ConversationRepository {
	return &conversationRepository{db: db, log: log}
}

const conversationColumns = `id, participant_low, participant_high, last_message_summary, last_message_at,
	unread_low, unread_high, created_at, updated_at`

func scanConversation(row scanner) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	err := row.Scan(
		&conv.ID, &conv.ParticipantLow, &conv.ParticipantHigh, &conv.LastMessageSummary, &conv.LastMessageAt,
		&conv.UnreadLow, &conv.UnreadHigh, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	query := `
		INSERT INTO conversations (participant_low, participant_high, unread_low, unread_high)
		VALUES ($1, $2, 0, 0)
		RETURNING ` + conversationColumns

	created, err := scanConversation(r.db.QueryRow(ctx, query, conv.ParticipantLow, conv.ParticipantHigh))
	if err != nil {
		if isUniqueViolation(err) {
			r.log.Debug("Conversation pair already exists", "low", conv.ParticipantLow, "high", conv.ParticipantHigh)
			return apperrors.Conflict("conversation already exists", err)
		}
		r.log.Error("Failed to create conversation", "error", err)
		return fmt.Errorf("create conversation: %w", err)
	}

	*conv = *created
	return nil
}

func (r *conversationRepository) GetByPair(ctx context.Context, low, high int64) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE participant_low = $1 AND participant_high = $2`

	conv, err := scanConversation(r.db.QueryRow(ctx, query, low, high))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("conversation not found")
		}
		r.log.Error("Failed to get conversation by pair", "error", err)
		return nil, fmt.Errorf("get conversation by pair: %w", err)
	}
	return conv, nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	return getConversation(ctx, r.db, id, false)
}

// getConversation loads a conversation, optionally locking its row for the rest
// of the transaction. The row lock is what serializes counter mutations.
func getConversation(ctx context.Context, q querier, id int64, lock bool) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	if lock {
		query += ` FOR NO KEY UPDATE`
	}

	conv, err := scanConversation(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("conversation not found")
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]*domain.Conversation, int, error) {
	var total int
	countQuery := `SELECT count(*) FROM conversations WHERE participant_low = $1 OR participant_high = $1`
	if err := r.db.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		r.log.Error("Failed to count conversations", "error", err)
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE participant_low = $1 OR participant_high = $1
		ORDER BY last_message_at DESC NULLS LAST, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.log.Error("Failed to list conversations", "error", err)
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]*domain.Conversation, 0, limit)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			r.log.Error("Failed to scan conversation", "error", err)
			return nil, 0, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate conversations: %w", err)
	}

	return conversations, total, nil
}

func (r *conversationRepository) SumUnreadForUser(ctx context.Context, userID int64) (int, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN participant_low = $1 THEN unread_low ELSE unread_high END), 0)
		FROM conversations
		WHERE participant_low = $1 OR participant_high = $1
	`

	var total int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&total); err != nil {
		r.log.Error("Failed to sum unread counters", "error", err, "user_id", userID)
		return 0, fmt.Errorf("sum unread: %w", err)
	}
	return total, nil
}

func (r *conversationRepository) RecomputeUnread(ctx context.Context, id int64) (*domain.Conversation, error) {
	query := `
		UPDATE conversations c
		SET unread_low = (
		        SELECT count(*) FROM messages m
		        WHERE m.conversation_id = c.id AND m.receiver_id = c.participant_low
		          AND m.is_read = FALSE AND m.is_deleted = FALSE),
		    unread_high = (
		        SELECT count(*) FROM messages m
		        WHERE m.conversation_id = c.id AND m.receiver_id = c.participant_high
		          AND m.is_read = FALSE AND m.is_deleted = FALSE),
		    updated_at = now()
		WHERE c.id = $1
		RETURNING ` + conversationColumns

	conv, err := scanConversation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("conversation not found")
		}
		r.log.Error("Failed to recompute unread counters", "error", err, "conversation_id", id)
		return nil, fmt.Errorf("recompute unread: %w", err)
	}
	return conv, nil
}

func (r *conversationRepository) ListIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM conversations WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversation ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
