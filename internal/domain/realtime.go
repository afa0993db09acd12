package domain

// Envelope is the frame pushed to websocket sessions.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	EventNewMessage      = "new_message"
	EventMessageDeleted  = "message_deleted"
	EventMessagesRead    = "messages_read"
	EventNewNotification = "new_notification"
	EventAnnouncement    = "announcement"
	EventPong            = "pong"
)

type MessagesReadEvent struct {
	ConversationID int64 `json:"conversation_id"`
	ReaderID       int64 `json:"reader_id"`
	Count          int   `json:"count"`
}

type MessageDeletedEvent struct {
	ConversationID int64 `json:"conversation_id"`
	MessageID      int64 `json:"message_id"`
}
