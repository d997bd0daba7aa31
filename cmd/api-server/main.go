package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/practice-booking-engine/internal/api"
	"github.com/hackgods/practice-booking-engine/internal/appointment"
	"github.com/hackgods/practice-booking-engine/internal/billing"
	"github.com/hackgods/practice-booking-engine/internal/config"
	"github.com/hackgods/practice-booking-engine/internal/consultation"
	"github.com/hackgods/practice-booking-engine/internal/db"
	"github.com/hackgods/practice-booking-engine/internal/delivery"
	"github.com/hackgods/practice-booking-engine/internal/exchangerate"
	"github.com/hackgods/practice-booking-engine/internal/identity"
	"github.com/hackgods/practice-booking-engine/internal/logger"
	"github.com/hackgods/practice-booking-engine/internal/mailer"
	"github.com/hackgods/practice-booking-engine/internal/notification"
	redisclient "github.com/hackgods/practice-booking-engine/internal/redis"
	"github.com/hackgods/practice-booking-engine/internal/storage"
)

const version = "1.0.0"

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
	zl = zl.With(zap.String("service", "api-server"))
	zl.Info("api-server starting up", zap.String("http_port", cfg.HTTPPort))

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
	zl.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		zl.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			zl.Warn("error closing redis", zap.Error(err))
		}
	}()
	zl.Info("connected to Redis")

	// Connect the mail broker
	sender, err := mailer.NewRabbitSender(cfg.RabbitMQURL, cfg.MailerQueue, cfg.MailerSender)
	if err != nil {
		zl.Fatal("rabbitmq connection error", zap.Error(err))
	}
	defer func() { _ = sender.Close() }()

	linker, err := storage.NewLinkerFromConfig(cfg)
	if err != nil {
		zl.Fatal("object storage init error", zap.Error(err))
	}

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	rates := exchangerate.NewCachedSource(
		exchangerate.NewHTTPSource(&http.Client{Timeout: 5 * time.Second}, cfg.ExchangeRateURL, cfg.ExchangeRateBase),
		redisclient.NewCache(rdb),
		cfg.ExchangeRateBase,
		cfg.ExchangeRateCacheTTL,
		zl,
	)

	notificationRepo := notification.NewPgRepository(pgPool)
	notifier := notification.NewEnqueuer(notificationRepo, zl)
	resolver := identity.NewResolver(identity.NewPgDirectory(pgPool), zl)

	appointments := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		resolver,
		locker,
		rates,
		notifier,
		cfg,
		zl,
	)
	invoices := billing.NewService(billing.NewPgRepository(pgPool), notifier, zl)
	consultationRepo := consultation.NewPgRepository(pgPool)
	consultations := consultation.NewService(consultationRepo, appointments, cfg.ReportDeliveryDelay, zl)

	reportWorker := delivery.NewWorker(
		delivery.NewPgRepository(pgPool),
		consultationRepo,
		linker,
		sender,
		delivery.WorkerOptions{
			BatchSize:   cfg.DeliveryBatchSize,
			MaxAttempts: cfg.DeliveryMaxAttempts,
			AppBaseURL:  cfg.AppBaseURL,
		},
		zl,
	)
	dispatcher := notification.NewDispatcher(notificationRepo, sender, zl, cfg.DeliveryBatchSize, cfg.DeliveryMaxAttempts)

	health := api.NewHealthHandler(pgPool, rdb, cfg.Env, version).
		WithCheck("rabbitmq", sender.Ping)

	router := api.NewRouter(api.RouterConfig{
		Appointments:  appointments,
		Consultations: consultations,
		Billing:       invoices,
		ReportQueue:   reportWorker,
		Notifications: dispatcher,
		Health:        health,
		JWTSecret:     cfg.JWTSecret,
		CronSecret:    cfg.CronSecret,
		RateLimitRPS:  cfg.RateLimitRPS,
		Log:           zl,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zl.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	zl.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("http server shutdown error", zap.Error(err))
	}
}
