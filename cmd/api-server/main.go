package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/doctor-appointment-booking/internal/api"
	"github.com/hackgods/doctor-appointment-booking/internal/appointment"
	"github.com/hackgods/doctor-appointment-booking/internal/config"
	"github.com/hackgods/doctor-appointment-booking/internal/db"
	"github.com/hackgods/doctor-appointment-booking/internal/logger"
	"github.com/hackgods/doctor-appointment-booking/internal/metrics"
	"github.com/hackgods/doctor-appointment-booking/internal/notify"
	"github.com/hackgods/doctor-appointment-booking/internal/payment"
	redisclient "github.com/hackgods/doctor-appointment-booking/internal/redis"
	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config load error")
	}

	base := logger.New(cfg.LogLevel)
	log := logger.Component(base, "api-server")
	log.WithFields(logrus.Fields{
		"env":       cfg.Env,
		"http_port": cfg.HTTPPort,
		"timezone":  cfg.Location().String(),
		"version":   version,
	}).Info("api-server starting up")

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

	if cfg.AutoMigrate {
		if err := db.Migrate(rootCtx, pgPool); err != nil {
			log.WithError(err).Fatal("migration error")
		}
		log.Info("migrations applied")
	}

	// Redis only fronts the slot locks; Postgres enforces capacity on its own.
	var (
		rdb    *redis.Client
		locker redisclient.Locker
	)
	rdb, err = redisclient.NewRedisClient(rootCtx, cfg.Redis())
	if err != nil {
		log.WithError(err).Warn("redis unavailable, falling back to in-process slot locks")
		locker = redisclient.NewLocalLocker()
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.WithError(err).Warn("error closing redis")
			}
		}()
		log.Info("connected to Redis")
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, cfg.LockWait)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var gateway appointment.PaymentGateway = payment.Noop{}
	if cfg.PaymentBaseURL != "" {
		gateway = payment.NewHTTPGateway(cfg.PaymentBaseURL, &http.Client{Timeout: 5 * time.Second})
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger.Component(base, "notify"))
	if rdb != nil {
		notifier = notify.NewRedisPublisher(rdb, cfg.NotifyChannel)
	}

	scheduleRepo := schedule.NewPgRepository(pgPool)
	bookingRepo := appointment.NewPgRepository(pgPool)

	availability := schedule.NewAvailabilityQuery(scheduleRepo, bookingRepo, cfg.Location(),
		logger.Component(base, "availability"),
		schedule.WithMaxDays(cfg.AvailabilityMaxDay),
		schedule.WithMetrics(m),
	)
	bookings := appointment.NewService(appointment.Deps{
		Repo:     bookingRepo,
		Slots:    availability,
		Locker:   locker,
		Pricing:  appointment.NewPricingPolicy(cfg.PlatformFeePercent),
		Payments: gateway,
		Notifier: notifier,
		Metrics:  m,
		Log:      logger.Component(base, "booking"),
		Location: cfg.Location(),
	})
	schedules := schedule.NewService(scheduleRepo, logger.Component(base, "schedule"))

	router := api.NewRouter(api.RouterConfig{
		Bookings:     bookings,
		Schedules:    schedules,
		Availability: availability,
		PgPool:       pgPool,
		Redis:        rdb,
		Metrics:      m,
		Gatherer:     reg,
		Log:          logger.Component(base, "http"),
		CORSOrigins:  cfg.CORSOrigins,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("http server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
		os.Exit(1)
	}
	log.Info("api-server stopped")
}
