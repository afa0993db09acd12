package domain

import (
	"time"
)

// Conversation is the single thread between an unordered pair of users.
// ParticipantLow < ParticipantHigh always holds.
type Conversation struct {
	ID                 int64      `json:"id"`
	ParticipantLow     int64      `json:"participant_low"`
	ParticipantHigh    int64      `json:"participant_high"`
	LastMessageSummary *string    `json:"last_message_summary,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadLow          int        `json:"unread_low"`
	UnreadHigh         int        `json:"unread_high"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// CanonicalPair orders two user ids so a pair is always looked up the same way.
func CanonicalPair(a, b int64) (low, high int64) {
	if a < b {
		return a, b
	}
	return b, a
}

func (c *Conversation) HasParticipant(userID int64) bool {
	return userID == c.ParticipantLow || userID == c.ParticipantHigh
}

// OtherParticipant returns the counterpart of userID, or 0 if userID is not a participant.
func (c *Conversation) OtherParticipant(userID int64) int64 {
	switch userID {
	case c.ParticipantLow:
		return c.ParticipantHigh
	case c.ParticipantHigh:
		return c.ParticipantLow
	default:
		return 0
	}
}

// UnreadFor returns the counter belonging to userID.
func (c *Conversation) UnreadFor(userID int64) int {
	switch userID {
	case c.ParticipantLow:
		return c.UnreadLow
	case c.ParticipantHigh:
		return c.UnreadHigh
	default:
		return 0
	}
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Conversation *Conversation `json:"conversation"`
	OtherUser    *UserProfile  `json:"other_user"`
	UnreadCount  int           `json:"unread_count"`
}
