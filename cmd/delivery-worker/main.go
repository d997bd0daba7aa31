package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/practice-booking-engine/internal/config"
	"github.com/hackgods/practice-booking-engine/internal/consultation"
	"github.com/hackgods/practice-booking-engine/internal/db"
	"github.com/hackgods/practice-booking-engine/internal/delivery"
	"github.com/hackgods/practice-booking-engine/internal/logger"
	"github.com/hackgods/practice-booking-engine/internal/mailer"
	"github.com/hackgods/practice-booking-engine/internal/notification"
	redisclient "github.com/hackgods/practice-booking-engine/internal/redis"
	"github.com/hackgods/practice-booking-engine/internal/scheduler"
	"github.com/hackgods/practice-booking-engine/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zl, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zl = zl.With(zap.String("service", "delivery-worker"))
	zl.Info("delivery-worker starting up", zap.String("schedule", cfg.WorkerSchedule))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		zl.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		zl.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			zl.Warn("error closing redis", zap.Error(err))
		}
	}()

	sender, err := mailer.NewRabbitSender(cfg.RabbitMQURL, cfg.MailerQueue, cfg.MailerSender)
	if err != nil {
		zl.Fatal("rabbitmq connection error", zap.Error(err))
	}
	defer func() { _ = sender.Close() }()

	linker, err := storage.NewLinkerFromConfig(cfg)
	if err != nil {
		zl.Fatal("object storage init error", zap.Error(err))
	}

	reportWorker := delivery.NewWorker(
		delivery.NewPgRepository(pgPool),
		consultation.NewPgRepository(pgPool),
		linker,
		sender,
		delivery.WorkerOptions{
			BatchSize:   cfg.DeliveryBatchSize,
			MaxAttempts: cfg.DeliveryMaxAttempts,
			AppBaseURL:  cfg.AppBaseURL,
		},
		zl,
	)
	dispatcher := notification.NewDispatcher(notification.NewPgRepository(pgPool), sender, zl, cfg.DeliveryBatchSize, cfg.DeliveryMaxAttempts)

	runner := scheduler.NewRunner(redisclient.NewRedisLocker(rdb, cfg.LockTTL), zl,
		scheduler.Job{Name: "report-queue", Run: func(ctx context.Context) (any, error) { return reportWorker.Drain(ctx) }},
		scheduler.Job{Name: "notification-emails", Run: func(ctx context.Context) (any, error) { return dispatcher.Dispatch(ctx) }},
	)

	// Run once at startup
	runner.RunOnce(rootCtx)

	if err := runner.Start(rootCtx, cfg.WorkerSchedule); err != nil {
		zl.Fatal("invalid worker schedule", zap.Error(err))
	}

	<-rootCtx.Done()
	zl.Info("shutdown signal received, stopping delivery worker")
	runner.Stop()
}
