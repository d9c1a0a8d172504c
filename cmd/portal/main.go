package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"projecthub/config"
	"projecthub/internal/cache"
	"projecthub/internal/feed"
	"projecthub/internal/handler"
	"projecthub/internal/httpserver"
	"projecthub/internal/repository"
	"projecthub/internal/service/auth"
	"projecthub/internal/service/board"
	"projecthub/internal/service/milestone"
	"projecthub/internal/service/project"
	"projecthub/pkg/db"
	"projecthub/pkg/logger"
	"projecthub/pkg/mq"
	"projecthub/pkg/redis"
)

const statsCacheTTL = 30 * time.Second

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting projecthub...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("redis_addr", cfg.Redis.Addr),
	)

	// DB
	log.Info("Initializing database connection...")
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established successfully")

	// Redis
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// MQ publisher for the change feed
	log.Info("Initializing MQ publisher...")
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()
	if err := publisher.EnsureDLQ(); err != nil {
		log.Fatal("Failed to declare DLQ exchange", zap.Error(err))
	}
	log.Info("MQ publisher initialized successfully")

	emitter := feed.NewEmitter(publisher, log)
	statsCache := cache.NewJSONCache(rdb, statsCacheTTL, log)

	// Repositories
	userRepo := repository.NewUserRepository(dbConn, log)
	projectRepo := repository.NewProjectRepository(dbConn, log)
	milestoneRepo := repository.NewMilestoneRepository(dbConn, log)
	activityRepo := repository.NewActivityRepository(dbConn, log)
	taskRepo := repository.NewTaskRepository(dbConn, log)
	commentRepo := repository.NewCommentRepository(dbConn, log)

	// Services
	authService := auth.NewService(userRepo, cfg.JWT.Secret, log)
	projectService := project.NewService(projectRepo, userRepo, log)
	milestoneService := milestone.NewService(milestoneRepo, activityRepo, projectRepo, emitter, statsCache, log)
	boardService := board.NewService(taskRepo, commentRepo, projectRepo, emitter, statsCache, log)

	// HTTP server
	log.Info("Initializing HTTP server...", zap.String("port", cfg.Server.Port))
	router := httpserver.NewRouter(httpserver.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		Project:   handler.NewProjectHandler(projectService),
		Milestone: handler.NewMilestoneHandler(milestoneService),
		Task:      handler.NewTaskHandler(boardService),
	}, authService, log, dbConn, publisher)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("projecthub is fully initialized and running",
		zap.String("http_port", cfg.Server.Port),
		zap.String("feed_exchange", mq.ExchangeName),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down projecthub gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("Closing database connection...")
	dbConn.Close()

	log.Info("projecthub shutdown complete")
}
