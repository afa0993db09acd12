package jobs

import (
	"context"
	"fmt"

	"campus_social/internal/config"
	"campus_social/internal/domain"
	"campus_social/internal/realtime"
	"campus_social/internal/repository"
	"campus_social/pkg/logger"

	"golang.org/x/time/rate"
)

const maxBatchSize = 1000

// Broadcaster writes one system notification per active user, one bounded
// INSERT per batch, then announces the broadcast to live sessions.
type Broadcaster struct {
	users         repository.UserRepository
	notifications repository.NotificationRepository
	publisher     realtime.Publisher
	batchSize     int
	limiter       *rate.Limiter
	log           logger.Logger
}

func NewBroadcaster(
	users repository.UserRepository,
	notifications repository.NotificationRepository,
	publisher realtime.Publisher,
	cfg config.NotificationConfig,
	log logger.Logger,
) *Broadcaster {
	batchSize := cfg.BroadcastBatchSize
	if batchSize <= 0 || batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}

	limit := rate.Inf
	if cfg.BroadcastBatchesPerS > 0 {
		limit = rate.Limit(cfg.BroadcastBatchesPerS)
	}

	return &Broadcaster{
		users:         users,
		notifications: notifications,
		publisher:     publisher,
		batchSize:     batchSize,
		limiter:       rate.NewLimiter(limit, 1),
		log:           log,
	}
}

// Broadcast returns the number of notifications written. On error the rows
// of earlier batches stay committed.
func (b *Broadcaster) Broadcast(ctx context.Context, broadcast domain.SystemBroadcast) (int64, error) {
	var (
		after   int64
		written int64
		batches int
	)

	for {
		if err := b.limiter.Wait(ctx); err != nil {
			return written, fmt.Errorf("wait for broadcast batch: %w", err)
		}

		ids, err := b.users.ListActiveIDsAfter(ctx, after, b.batchSize)
		if err != nil {
			return written, fmt.Errorf("list recipients after %d: %w", after, err)
		}
		if len(ids) == 0 {
			break
		}

		n, err := b.notifications.CreateSystemBatch(ctx, ids, broadcast)
		if err != nil {
			return written, fmt.Errorf("insert batch after %d: %w", after, err)
		}
		written += n
		batches++
		after = ids[len(ids)-1]

		if len(ids) < b.batchSize {
			break
		}
	}

	b.log.Info("System broadcast written", "title", broadcast.Title, "notifications", written, "batches", batches)
	b.publisher.Broadcast(ctx, domain.Envelope{Type: domain.EventAnnouncement, Data: broadcast})

	return written, nil
}
