package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"projecthub/config"
	"projecthub/contracts/feed"
	"projecthub/internal/realtime"
	"projecthub/internal/repository"
	"projecthub/pkg/db"
	"projecthub/pkg/logger"
	"projecthub/pkg/mq"
	"projecthub/pkg/redis"
	"projecthub/pkg/util"
)

// syncd keeps live replicas of one project's milestones and task board. It is
// the server-side mirror behind realtime project views: clients read the
// replica instead of hitting the database on every change.
func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	projectID, err := strconv.Atoi(os.Getenv("PROJECT_ID"))
	if err != nil || projectID <= 0 {
		log.Fatal("PROJECT_ID must be a positive integer")
	}

	log.Info("Starting syncd...", zap.Int("project_id", projectID))

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	dlqPub, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("failed to init DLQ publisher", zap.Error(err))
	}
	defer dlqPub.Close()
	if err := dlqPub.EnsureDLQ(); err != nil {
		log.Fatal("failed to declare DLQ exchange", zap.Error(err))
	}

	opts := realtime.Options{
		Deduper: util.NewDeduper(rdb, time.Hour, log),
		Retries: util.NewRetryCounter(rdb, time.Hour),
		DLQ:     dlqPub,
	}

	milestoneRepo := repository.NewMilestoneRepository(dbConn, log)
	taskRepo := repository.NewTaskRepository(dbConn, log)

	milestoneKey := feed.RoutingKey(feed.TableMilestones, projectID)
	milestoneSub, err := mq.NewConsumer(cfg.MQ.URL, milestoneKey+".q", milestoneKey, log)
	if err != nil {
		log.Fatal("failed to init milestone consumer", zap.Error(err))
	}

	taskKey := feed.RoutingKey(feed.TableTasks, projectID)
	taskSub, err := mq.NewConsumer(cfg.MQ.URL, taskKey+".q", taskKey, log)
	if err != nil {
		log.Fatal("failed to init task consumer", zap.Error(err))
	}

	ctx := context.Background()

	milestoneSync := realtime.NewMilestoneSyncer(projectID, milestoneRepo, milestoneSub, opts, log)
	if err := milestoneSync.Start(ctx); err != nil {
		log.Fatal("milestone syncer failed to start", zap.Error(err))
	}

	taskSync := realtime.NewTaskSyncer(projectID, taskRepo, taskSub, opts, log)
	if err := taskSync.Start(ctx); err != nil {
		log.Fatal("task syncer failed to start", zap.Error(err))
	}

	log.Info("Replicas live, consuming change events")

	// Periodic resync catches anything the feed dropped.
	resyncTicker := time.NewTicker(5 * time.Minute)
	defer resyncTicker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-resyncTicker.C:
			if err := milestoneSync.Resync(ctx, "manual"); err != nil {
				log.Error("milestone resync failed", zap.Error(err))
			}
			if err := taskSync.Resync(ctx, "manual"); err != nil {
				log.Error("task resync failed", zap.Error(err))
			}
		case <-quit:
			log.Info("Shutting down syncd...")
			milestoneSync.Close()
			taskSync.Close()
			log.Info("syncd shutdown complete")
			return
		}
	}
}
