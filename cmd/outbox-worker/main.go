package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hackgods/doctor-appointment-booking/internal/appointment"
	"github.com/hackgods/doctor-appointment-booking/internal/config"
	"github.com/hackgods/doctor-appointment-booking/internal/db"
	"github.com/hackgods/doctor-appointment-booking/internal/logger"
	"github.com/hackgods/doctor-appointment-booking/internal/notify"
	"github.com/hackgods/doctor-appointment-booking/internal/payment"
	redisclient "github.com/hackgods/doctor-appointment-booking/internal/redis"
)

// outbox-worker replays side effects (payment orders, notifications) that
// failed while a booking request was served.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config load error")
	}

	base := logger.New(cfg.LogLevel)
	log := logger.Component(base, "outbox-worker")
	log.WithFields(logrus.Fields{
		"env":          cfg.Env,
		"interval":     cfg.WorkerInterval.String(),
		"batch_size":   cfg.OutboxBatchSize,
		"max_attempts": cfg.OutboxMaxAttempts,
	}).Info("outbox-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresPool())
	cancelPg()
	if err != nil {
		log.WithError(err).Fatal("postgres connection error")
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	var notifier notify.Notifier = notify.NewLogNotifier(logger.Component(base, "notify"))
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.Redis())
	if err != nil {
		log.WithError(err).Warn("redis unavailable, notifications go to the log")
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.WithError(err).Warn("error closing redis")
			}
		}()
		log.Info("connected to Redis")
		notifier = notify.NewRedisPublisher(rdb, cfg.NotifyChannel)
	}

	var gateway appointment.PaymentGateway = payment.Noop{}
	if cfg.PaymentBaseURL != "" {
		gateway = payment.NewHTTPGateway(cfg.PaymentBaseURL, &http.Client{Timeout: 5 * time.Second})
	}

	svc := appointment.NewService(appointment.Deps{
		Repo:     appointment.NewPgRepository(pgPool),
		Payments: gateway,
		Notifier: notifier,
		Log:      logger.Component(base, "booking"),
		Location: cfg.Location(),
	})

	// Run once at startup
	runOnce(rootCtx, log, svc, cfg)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping outbox worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, log, svc, cfg)
		}
	}
}

func runOnce(ctx context.Context, log *logrus.Entry, svc *appointment.Service, cfg config.Config) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.RetryPendingSideEffects(runCtx, cfg.OutboxBatchSize, cfg.OutboxMaxAttempts)
	if err != nil {
		log.WithError(err).Error("outbox run error")
		return
	}
	log.WithFields(logrus.Fields{
		"dispatched":  n,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("outbox run complete")
}
