package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"campus_social/internal/domain"
	"campus_social/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// relayFrame is what travels over the Redis channel. UserID 0 means everyone.
type relayFrame struct {
	UserID   int64           `json:"user_id"`
	Envelope json.RawMessage `json:"envelope"`
}

// RedisPublisher fans pushes out through a Redis channel so that every
// instance delivers to the sessions it holds.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	log     logger.Logger
}

func NewRedisPublisher(rdb *redis.Client, channel string, hub *Hub, log logger.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel, hub: hub, log: log}
}

func (p *RedisPublisher) Push(ctx context.Context, userID int64, env domain.Envelope) {
	p.publish(ctx, userID, env)
}

func (p *RedisPublisher) Broadcast(ctx context.Context, env domain.Envelope) {
	p.publish(ctx, 0, env)
}

func (p *RedisPublisher) publish(ctx context.Context, userID int64, env domain.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		p.log.Warn("Failed to encode realtime payload", "error", err, "type", env.Type)
		return
	}
	frame, err := json.Marshal(relayFrame{UserID: userID, Envelope: payload})
	if err != nil {
		p.log.Warn("Failed to encode relay frame", "error", err)
		return
	}
	if err := p.rdb.Publish(ctx, p.channel, frame).Err(); err != nil {
		p.log.Warn("Failed to publish realtime event", "error", err, "user_id", userID, "type", env.Type)
	}
}

// Run relays channel traffic to the local hub until ctx is cancelled.
func (p *RedisPublisher) Run(ctx context.Context) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	p.log.Info("Realtime relay subscribed", "channel", p.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("realtime relay channel closed")
			}
			p.relay(msg.Payload)
		}
	}
}

func (p *RedisPublisher) relay(payload string) {
	var frame relayFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		p.log.Warn("Dropping malformed relay frame", "error", err)
		return
	}
	if frame.UserID == 0 {
		p.hub.DeliverAll(frame.Envelope)
		return
	}
	p.hub.Deliver(frame.UserID, frame.Envelope)
}
