package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"campus_social/internal/domain"
	"campus_social/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const maxInboundFrame = 4096

type SessionConfig struct {
	PingInterval time.Duration
	WriteWait    time.Duration
	SendBuffer   int
}

// Session is one websocket connection of a user.
type Session struct {
	ID     uuid.UUID
	UserID int64

	conn      *websocket.Conn
	send      chan []byte
	cfg       SessionConfig
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	log       logger.Logger
}

func NewSession(userID int64, conn *websocket.Conn, cfg SessionConfig, log logger.Logger) *Session {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	id := uuid.New()
	return &Session{
		ID:     id,
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, cfg.SendBuffer),
		cfg:    cfg,
		log:    log.With("session_id", id.String(), "user_id", userID),
	}
}

func (s *Session) enqueue(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *Session) closeSend() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.send)
		s.mu.Unlock()
	})
}

// Serve registers the session, runs its write pump and blocks in the read loop
// until the client goes away.
func (s *Session) Serve(hub *Hub) {
	hub.Register(s)
	done := make(chan struct{})
	go func() {
		s.writePump()
		close(done)
	}()

	s.readPump()
	hub.Unregister(s)
	<-done
	_ = s.conn.Close()
}

func (s *Session) readPump() {
	pongWait := s.cfg.PingInterval * 2
	s.conn.SetReadLimit(maxInboundFrame)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Websocket closed unexpectedly", "error", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame domain.Envelope
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type == "ping" {
			pong, _ := json.Marshal(domain.Envelope{Type: domain.EventPong, Data: time.Now().UTC()})
			s.enqueue(pong)
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				_ = s.conn.Close()
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debug("Websocket write failed", "error", err)
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = s.conn.Close()
				return
			}
		}
	}
}
