package realtime

import (
	"context"
	"encoding/json"

	"campus_social/internal/domain"
	"campus_social/pkg/logger"
)

// Publisher pushes best-effort freshness hints to connected clients. Durable
// state lives in Postgres; nothing here returns an error to the caller.
type Publisher interface {
	Push(ctx context.Context, userID int64, env domain.Envelope)
	Broadcast(ctx context.Context, env domain.Envelope)
}

// LocalPublisher delivers to sessions held by this process only.
type LocalPublisher struct {
	hub *Hub
	log logger.Logger
}

func NewLocalPublisher(hub *Hub, log logger.Logger) *LocalPublisher {
	return &LocalPublisher{hub: hub, log: log}
}

func (p *LocalPublisher) Push(_ context.Context, userID int64, env domain.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		p.log.Warn("Failed to encode realtime payload", "error", err, "type", env.Type)
		return
	}
	p.hub.Deliver(userID, data)
}

func (p *LocalPublisher) Broadcast(_ context.Context, env domain.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		p.log.Warn("Failed to encode realtime payload", "error", err, "type", env.Type)
		return
	}
	p.hub.DeliverAll(data)
}
