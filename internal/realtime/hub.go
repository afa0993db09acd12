package realtime

import (
	"sync"

	"campus_social/pkg/logger"

	"github.com/google/uuid"
)

// Hub is the process-local registry of live websocket sessions, keyed by user.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]map[uuid.UUID]*Session
	log      logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		sessions: make(map[int64]map[uuid.UUID]*Session),
		log:      log,
	}
}

func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userSessions, ok := h.sessions[s.UserID]
	if !ok {
		userSessions = make(map[uuid.UUID]*Session)
		h.sessions[s.UserID] = userSessions
	}
	userSessions[s.ID] = s
	h.log.Debug("Session registered", "user_id", s.UserID, "session_id", s.ID)
}

func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userSessions, ok := h.sessions[s.UserID]
	if !ok {
		return
	}
	if _, ok := userSessions[s.ID]; !ok {
		return
	}
	delete(userSessions, s.ID)
	if len(userSessions) == 0 {
		delete(h.sessions, s.UserID)
	}
	s.closeSend()
	h.log.Debug("Session unregistered", "user_id", s.UserID, "session_id", s.ID)
}

// Deliver queues data on every session of userID and reports how many accepted it.
// A session whose buffer is full is dropped; the client refetches on reconnect.
func (h *Hub) Deliver(userID int64, data []byte) int {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions[userID]))
	for _, s := range h.sessions[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	return h.enqueue(targets, data)
}

// DeliverAll queues data on every live session.
func (h *Hub) DeliverAll(data []byte) int {
	h.mu.RLock()
	targets := make([]*Session, 0)
	for _, userSessions := range h.sessions {
		for _, s := range userSessions {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	return h.enqueue(targets, data)
}

func (h *Hub) enqueue(targets []*Session, data []byte) int {
	delivered := 0
	for _, s := range targets {
		if s.enqueue(data) {
			delivered++
			continue
		}
		h.log.Warn("Dropping slow websocket session", "user_id", s.UserID, "session_id", s.ID)
		h.Unregister(s)
	}
	return delivered
}

func (h *Hub) SessionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}
