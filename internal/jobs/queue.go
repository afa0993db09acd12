package jobs

import (
	"context"
	"fmt"
	"time"

	"campus_social/internal/config"
	"campus_social/internal/domain"
	"campus_social/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

// SystemBroadcastArgs is the durable job for a broadcast to every active user.
type SystemBroadcastArgs struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Link    *string `json:"link,omitempty"`
}

func (SystemBroadcastArgs) Kind() string {
	return "system_broadcast"
}

// InsertOpts disables retries: a retried broadcast would duplicate the
// batches that committed before the failure.
func (SystemBroadcastArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

type SystemBroadcastWorker struct {
	river.WorkerDefaults[SystemBroadcastArgs]
	broadcaster *Broadcaster
	timeout     time.Duration
	log         logger.Logger
}

// Timeout overrides River's one minute default; a paced fan-out runs longer.
// -1 disables the limit.
func (w *SystemBroadcastWorker) Timeout(*river.Job[SystemBroadcastArgs]) time.Duration {
	if w.timeout <= 0 {
		return -1
	}
	return w.timeout
}

func (w *SystemBroadcastWorker) Work(ctx context.Context, job *river.Job[SystemBroadcastArgs]) error {
	broadcast := domain.SystemBroadcast{Title: job.Args.Title, Content: job.Args.Content, Link: job.Args.Link}

	written, err := w.broadcaster.Broadcast(ctx, broadcast)
	if err != nil {
		w.log.Error("System broadcast failed", "error", err, "job_id", job.ID, "written", written)
		return err
	}
	w.log.Info("System broadcast job done", "job_id", job.ID, "written", written)
	return nil
}

// Queue runs background jobs on River over the service's Postgres pool.
type Queue struct {
	client *river.Client[pgx.Tx]
	log    logger.Logger
}

func NewQueue(pool *pgxpool.Pool, broadcaster *Broadcaster, cfg config.JobsConfig, log logger.Logger) (*Queue, error) {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &SystemBroadcastWorker{broadcaster: broadcaster, timeout: cfg.BroadcastTimeout, log: log})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &Queue{client: client, log: log}, nil
}

func (q *Queue) Start(ctx context.Context) error {
	return q.client.Start(ctx)
}

func (q *Queue) Stop(ctx context.Context) error {
	return q.client.Stop(ctx)
}

func (q *Queue) EnqueueSystemBroadcast(ctx context.Context, broadcast domain.SystemBroadcast) error {
	args := SystemBroadcastArgs{Title: broadcast.Title, Content: broadcast.Content, Link: broadcast.Link}

	res, err := q.client.Insert(ctx, args, nil)
	if err != nil {
		return fmt.Errorf("failed to queue system broadcast: %w", err)
	}
	q.log.Info("System broadcast enqueued", "job_id", res.Job.ID)
	return nil
}

// Migrate brings River's own tables up to date.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create River migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("failed to migrate River schema: %w", err)
	}
	return nil
}
