package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	SenderID       int64      `json:"sender_id"`
	ReceiverID     int64      `json:"receiver_id"`
	Content        string     `json:"content"`
	Type           string     `json:"type"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	IsDeleted      bool       `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
}

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

const summaryMaxRunes = 100

func IsValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// Summary is the conversation preview shown in the conversation list.
func (m *Message) Summary() string {
	switch m.Type {
	case MessageTypeImage:
		return "[image]"
	case MessageTypeFile:
		return "[file]"
	}
	content := strings.TrimSpace(m.Content)
	if utf8.RuneCountInString(content) <= summaryMaxRunes {
		return content
	}
	runes := []rune(content)
	return fmt.Sprintf("%s...", string(runes[:summaryMaxRunes]))
}
