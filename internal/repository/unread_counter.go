package repository

import (
	"context"
	"fmt"
)

// unreadCounter mutates the per-participant counters on a conversation row.
// Every call runs on the caller's transaction, next to the message write that
// motivates it; there is no standalone path.
type unreadCounter struct{}

func (unreadCounter) increment(ctx context.Context, q querier, conversationID, participantID int64) error {
	return unreadCounter{}.apply(ctx, q, conversationID, participantID,
		`unread_low = unread_low + CASE WHEN participant_low = $2 THEN 1 ELSE 0 END,
		 unread_high = unread_high + CASE WHEN participant_high = $2 THEN 1 ELSE 0 END`)
}

// decrement never drops below zero.
func (unreadCounter) decrement(ctx context.Context, q querier, conversationID, participantID int64, amount int) error {
	if amount <= 0 {
		return nil
	}
	return unreadCounter{}.apply(ctx, q, conversationID, participantID,
		`unread_low = CASE WHEN participant_low = $2 THEN GREATEST(unread_low - $3, 0) ELSE unread_low END,
		 unread_high = CASE WHEN participant_high = $2 THEN GREATEST(unread_high - $3, 0) ELSE unread_high END`,
		amount)
}

func (unreadCounter) apply(ctx context.Context, q querier, conversationID, participantID int64, set string, extra ...any) error {
	query := `UPDATE conversations SET ` + set + `, updated_at = now()
		WHERE id = $1 AND (participant_low = $2 OR participant_high = $2)`

	args := append([]any{conversationID, participantID}, extra...)
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update unread counter: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update unread counter: user %d is not a participant of conversation %d", participantID, conversationID)
	}
	return nil
}
