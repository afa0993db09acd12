package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"campus_social/internal/config"
	"campus_social/internal/domain"
	"campus_social/internal/handler"
	"campus_social/internal/jobs"
	"campus_social/internal/middleware"
	"campus_social/internal/realtime"
	"campus_social/internal/repository"
	"campus_social/internal/service"
	"campus_social/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	dbPool, err := repository.NewPool(ctx, cfg.Database)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()
	appLogger.Info("Database connection established")

	if err := repository.Migrate(ctx, dbPool); err != nil {
		appLogger.Fatal("Failed to apply schema", "error", err)
	}

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	repos := repository.NewRepositories(dbPool, rdb, cfg, appLogger)

	hub := realtime.NewHub(appLogger)
	publisher := newPublisher(ctx, cfg.Realtime, hub, rdb, appLogger)

	broadcaster := jobs.NewBroadcaster(repos.User, repos.Notification, publisher, cfg.Notification, appLogger)

	var queue service.BroadcastQueue
	if cfg.Jobs.Enabled {
		if err := jobs.Migrate(ctx, dbPool); err != nil {
			appLogger.Fatal("Failed to migrate job tables", "error", err)
		}
		jobQueue, err := jobs.NewQueue(dbPool, broadcaster, cfg.Jobs, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to create job queue", "error", err)
		}
		if err := jobQueue.Start(ctx); err != nil {
			appLogger.Fatal("Failed to start job queue", "error", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := jobQueue.Stop(stopCtx); err != nil {
				appLogger.Warn("Job queue did not stop cleanly", "error", err)
			}
		}()
		queue = jobQueue
	}

	services := service.NewServices(repos, publisher, broadcaster, queue, cfg, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, cfg.Server.RequestLimit, cfg.Server.RequestWindow, authMiddleware.Identify, appLogger)

	sessionCfg := realtime.SessionConfig{
		PingInterval: cfg.Realtime.PingInterval,
		WriteWait:    cfg.Realtime.WriteWait,
		SendBuffer:   cfg.Realtime.SendBuffer,
	}
	checks := map[string]handler.HealthCheck{
		"postgres": dbPool.Ping,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}
	handlers := handler.NewHandlers(services, hub, authMiddleware, sessionCfg, checks, appLogger)

	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("Starting server", "addr", srv.Addr, "realtime_mode", cfg.Realtime.Mode, "jobs_enabled", cfg.Jobs.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}
	if err := services.Dispatcher.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Side effects still running at shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

// newPublisher picks the in-process publisher, or the Redis relay when several
// instances share websocket traffic.
func newPublisher(ctx context.Context, cfg config.RealtimeConfig, hub *realtime.Hub, rdb *redis.Client, log logger.Logger) realtime.Publisher {
	if cfg.Mode != config.RealtimeModeRedis {
		return realtime.NewLocalPublisher(hub, log)
	}

	pub := realtime.NewRedisPublisher(rdb, cfg.Channel, hub, log)
	go func() {
		if err := pub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Realtime relay stopped", "error", err)
		}
	}()
	return pub
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	router.GET("/ws", handlers.WebSocket.Connect)

	v1 := router.Group("/api/v1")
	v1.Use(rateLimitMiddleware.Limit(), authMiddleware.RequireAuth())
	{
		messages := v1.Group("/messages")
		{
			messages.GET("/conversations", handlers.Message.ListConversations)
			// :id is the other user here, and the conversation in /messages below.
			messages.GET("/conversation/:id", handlers.Message.OpenConversation)
			messages.GET("/conversation/:id/messages", handlers.Message.GetMessages)
			messages.POST("/send", handlers.Message.SendMessage)
			messages.GET("/unread-count", handlers.Message.UnreadCount)
			messages.DELETE("/:messageId", handlers.Message.DeleteMessage)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", handlers.Notification.List)
			notifications.GET("/unread-count", handlers.Notification.UnreadCount)
			notifications.PUT("/read-all", handlers.Notification.MarkAllRead)
			notifications.PUT("/:id/read", handlers.Notification.MarkRead)
			notifications.DELETE("/clear-read", handlers.Notification.ClearRead)
			notifications.DELETE("/:id", handlers.Notification.Delete)
			notifications.POST("/batch-delete", handlers.Notification.BatchDelete)
			notifications.POST("/system", authMiddleware.RequireRole(domain.RoleAdmin), handlers.Notification.SendSystem)
			notifications.GET("/system/history", authMiddleware.RequireRole(domain.RoleAdmin), handlers.Notification.SystemHistory)
		}
	}

	return router
}
