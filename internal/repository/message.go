package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campus_social/internal/domain"
	apperrors "campus_social/pkg/errors"
	"campus_social/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository interface {
	// Append inserts the message, bumps the receiver's unread counter and
	// refreshes the conversation summary in one transaction.
	Append(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	// ListPage returns non-deleted messages, newest page first, ordered oldest-first.
	ListPage(ctx context.Context, conversationID int64, limit, offset int) ([]*domain.Message, error)
	// MarkAllReadForParticipant flips the participant's unread messages and
	// decrements their counter by exactly the number of rows flipped.
	MarkAllReadForParticipant(ctx context.Context, conversationID, participantID int64) (int, error)
	// SoftDelete hides a message for both participants. Only the sender may delete.
	SoftDelete(ctx context.Context, messageID, requesterID int64) (*domain.Message, error)
}

type messageRepository struct {
	db      *pgxpool.Pool
	counter unreadCounter
	log     logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

const messageColumns = `id, conversation_id, sender_id, receiver_id, content, type, is_read, read_at, is_deleted, created_at`

func scanMessage(row scanner) (*domain.Message, error) {
	message := &domain.Message{}
	err := row.Scan(
		&message.ID, &message.ConversationID, &message.SenderID, &message.ReceiverID,
		&message.Content, &message.Type, &message.IsRead, &message.ReadAt, &message.IsDeleted, &message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return message, nil
}

func (r *messageRepository) Append(ctx context.Context, message *domain.Message) error {
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		// Lock order is conversation row first, then messages, in every writer.
		conv, err := getConversation(ctx, tx, message.ConversationID, true)
		if err != nil {
			return err
		}
		// Stamped under the row lock so commit order and timestamp order agree.
		if message.CreatedAt.IsZero() {
			message.CreatedAt = time.Now().UTC()
		}
		if !conv.HasParticipant(message.SenderID) {
			return apperrors.Forbidden("sender is not a participant of this conversation")
		}
		if conv.OtherParticipant(message.SenderID) != message.ReceiverID {
			return apperrors.Validation("receiver is not the other participant of this conversation")
		}

		if err := r.counter.increment(ctx, tx, message.ConversationID, message.ReceiverID); err != nil {
			return err
		}

		summary := message.Summary()
		_, err = tx.Exec(ctx, `
			UPDATE conversations
			SET last_message_summary = CASE
					WHEN last_message_at IS NULL OR last_message_at <= $3 THEN $2
					ELSE last_message_summary
				END,
				last_message_at = GREATEST(last_message_at, $3),
				updated_at = now()
			WHERE id = $1
		`, message.ConversationID, summary, message.CreatedAt)
		if err != nil {
			return fmt.Errorf("update conversation summary: %w", err)
		}

		inserted, err := scanMessage(tx.QueryRow(ctx, `
			INSERT INTO messages (conversation_id, sender_id, receiver_id, content, type, is_read, created_at)
			VALUES ($1, $2, $3, $4, $5, FALSE, $6)
			RETURNING `+messageColumns,
			message.ConversationID, message.SenderID, message.ReceiverID, message.Content, message.Type, message.CreatedAt,
		))
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		*message = *inserted
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			r.log.Error("Failed to append message", "error", err, "conversation_id", message.ConversationID)
		}
		return err
	}

	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	message, err := scanMessage(r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("message not found")
		}
		r.log.Error("Failed to get message", "error", err)
		return nil, fmt.Errorf("get message: %w", err)
	}
	return message, nil
}

func (r *messageRepository) ListPage(ctx context.Context, conversationID int64, limit, offset int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND is_deleted = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		r.log.Error("Failed to get messages", "error", err)
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0, limit)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Newest-first from the index, oldest-first for display.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) MarkAllReadForParticipant(ctx context.Context, conversationID, participantID int64) (int, error) {
	var flipped int

	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		conv, err := getConversation(ctx, tx, conversationID, true)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(participantID) {
			return apperrors.Forbidden("not a participant of this conversation")
		}

		tag, err := tx.Exec(ctx, `
			UPDATE messages
			SET is_read = TRUE, read_at = $3
			WHERE conversation_id = $1 AND receiver_id = $2 AND is_read = FALSE AND is_deleted = FALSE
		`, conversationID, participantID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("mark messages read: %w", err)
		}

		// Decrement by what was flipped, never reset to zero: a message that was
		// not selected here must stay counted.
		flipped = int(tag.RowsAffected())
		return r.counter.decrement(ctx, tx, conversationID, participantID, flipped)
	})
	if err != nil {
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			r.log.Error("Failed to mark messages read", "error", err, "conversation_id", conversationID)
		}
		return 0, err
	}

	return flipped, nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, messageID, requesterID int64) (*domain.Message, error) {
	existing, err := r.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if existing.IsDeleted {
		return nil, apperrors.NotFound("message not found")
	}
	if existing.SenderID != requesterID {
		return nil, apperrors.Forbidden("only the sender can delete a message")
	}

	var deleted *domain.Message
	err = inTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := getConversation(ctx, tx, existing.ConversationID, true); err != nil {
			return err
		}

		deleted, err = scanMessage(tx.QueryRow(ctx, `
			UPDATE messages SET is_deleted = TRUE
			WHERE id = $1 AND sender_id = $2 AND is_deleted = FALSE
			RETURNING `+messageColumns,
			messageID, requesterID,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NotFound("message not found")
			}
			return fmt.Errorf("soft delete message: %w", err)
		}

		if !deleted.IsRead {
			return r.counter.decrement(ctx, tx, deleted.ConversationID, deleted.ReceiverID, 1)
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			r.log.Error("Failed to delete message", "error", err, "message_id", messageID)
		}
		return nil, err
	}

	return deleted, nil
}
