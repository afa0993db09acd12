package main

import (
	"context"
	"fmt"

	"campus_social/internal/config"
	"campus_social/internal/domain"
	"campus_social/internal/jobs"
	"campus_social/internal/realtime"
	"campus_social/internal/repository"
	"campus_social/internal/service"
	"campus_social/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

// env holds the connections every command needs.
type env struct {
	cfg   *config.Config
	log   logger.Logger
	db    *pgxpool.Pool
	rdb   *redis.Client
	repos *repository.Repositories
}

func connect(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.NewConsole(cfg.Log.Level)

	db, err := repository.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return &env{
		cfg:   cfg,
		log:   log,
		db:    db,
		rdb:   rdb,
		repos: repository.NewRepositories(db, rdb, cfg, log),
	}, nil
}

// audit records a maintenance run. The CLI acts as the system, not as a user.
func (e *env) audit(ctx context.Context, eventType string, payload map[string]interface{}) {
	service.NewAuditService(e.repos.Audit, e.log).LogEvent(ctx, nil, domain.ActorRoleSystem, eventType, payload)
}

func (e *env) close() {
	_ = e.rdb.Close()
	e.db.Close()
}

// withEnv wraps an action so it gets connections and releases them afterwards.
func withEnv(action func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := connect(c.Context)
		if err != nil {
			return err
		}
		defer e.close()
		return action(c, e)
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the application schema and the job queue tables",
		Action: withEnv(func(c *cli.Context, e *env) error {
			if err := repository.Migrate(c.Context, e.db); err != nil {
				return err
			}
			if err := jobs.Migrate(c.Context, e.db); err != nil {
				return err
			}
			e.log.Info("Migrations applied")
			return nil
		}),
	}
}

func repairUnreadCommand() *cli.Command {
	return &cli.Command{
		Name:  "repair-unread",
		Usage: "Recompute conversation unread counters from message rows",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "conversation",
				Usage: "Repair only conversation `ID`",
			},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			unread := service.NewUnreadService(e.repos.Conversation, e.repos.UnreadCache, e.log)

			if id := c.Int64("conversation"); id > 0 {
				conv, err := unread.Repair(c.Context, id)
				if err != nil {
					return err
				}
				fmt.Printf("conversation %d: unread_low=%d unread_high=%d\n", conv.ID, conv.UnreadLow, conv.UnreadHigh)
				e.audit(c.Context, domain.EventTypeUnreadRepaired, map[string]interface{}{"conversation_id": id})
				return nil
			}

			n, err := unread.RepairAll(c.Context)
			if err != nil {
				return fmt.Errorf("repair stopped after %d conversations: %w", n, err)
			}
			fmt.Printf("repaired %d conversations\n", n)
			e.audit(c.Context, domain.EventTypeUnreadRepaired, map[string]interface{}{"conversations": n})
			return nil
		}),
	}
}

func clearReadCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear-read-notifications",
		Usage: "Delete every read notification of a user",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "user",
				Usage:    "User `ID`",
				Required: true,
			},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			readState := service.NewReadStateService(e.repos.Notification, e.cfg.Notification, e.log)

			n, err := readState.ClearRead(c.Context, c.Int64("user"))
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d notifications\n", n)
			e.audit(c.Context, domain.EventTypeReadNotificationsCleared, map[string]interface{}{"user_id": c.Int64("user"), "deleted": n})
			return nil
		}),
	}
}

func broadcastCommand() *cli.Command {
	return &cli.Command{
		Name:  "broadcast",
		Usage: "Send a system notification to every active user, bypassing the job queue",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Required: true},
			&cli.StringFlag{Name: "content", Required: true},
			&cli.StringFlag{Name: "link"},
		},
		Action: withEnv(func(c *cli.Context, e *env) error {
			b := domain.SystemBroadcast{Title: c.String("title"), Content: c.String("content")}
			if link := c.String("link"); link != "" {
				b.Link = &link
			}

			// Only the Redis relay can reach sessions held by running servers.
			var publisher realtime.Publisher = realtime.NewLocalPublisher(realtime.NewHub(e.log), e.log)
			if e.cfg.Realtime.Mode == config.RealtimeModeRedis {
				publisher = realtime.NewRedisPublisher(e.rdb, e.cfg.Realtime.Channel, realtime.NewHub(e.log), e.log)
			}

			broadcaster := jobs.NewBroadcaster(e.repos.User, e.repos.Notification, publisher, e.cfg.Notification, e.log)
			n, err := broadcaster.Broadcast(c.Context, b)
			if err != nil {
				return fmt.Errorf("broadcast stopped after %d notifications: %w", n, err)
			}
			fmt.Printf("created %d notifications\n", n)
			e.audit(c.Context, domain.EventTypeSystemBroadcastSent, map[string]interface{}{"title": b.Title, "recipients": n})
			return nil
		}),
	}
}
