package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"slipgate/internal/audit"
	"slipgate/internal/booking"
	"slipgate/internal/compliance"
	"slipgate/internal/notify"
	"slipgate/internal/platform/config"
	"slipgate/internal/platform/httpserver"
	"slipgate/internal/platform/logger"
	"slipgate/internal/platform/metrics"
	"slipgate/internal/platform/middleware"
	platformredis "slipgate/internal/platform/redis"
	"slipgate/internal/reminder"
	"slipgate/internal/slip/handler"
	"slipgate/internal/slip/integrity"
	"slipgate/internal/slip/service"
	"slipgate/internal/slip/store"
	"slipgate/internal/slip/token"
	httptransport "slipgate/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle: HTTP server,
// reminder scheduler, and graceful shutdown. Business logic lives in the
// internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Persistence: PostgreSQL when configured, in-memory otherwise.
	var slipStore store.Store
	var healthChecks = map[string]httptransport.HealthChecker{}
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.ApplySchema(ctx, db); err != nil {
			return err
		}
		slipStore = store.NewPostgres(db)
		healthChecks["database"] = dbChecker{db}
		log.Info("using postgres slip store")
	} else {
		slipStore = store.NewInMemory()
		log.Info("using in-memory slip store")
	}

	// Audit trail: local store is the source of truth; Kafka mirrors events
	// for downstream consumers when brokers are configured.
	var auditStore audit.Store = audit.NewInMemoryStore()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaStore, err := audit.NewKafkaPublisher(auditStore, cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = kafkaStore.Close(closeCtx)
		}()
		auditStore = kafkaStore
		log.Info("mirroring audit events to kafka", "topic", cfg.KafkaTopic)
	}
	audits := audit.NewPublisher(auditStore)

	// Booking system boundary.
	var bookings booking.Provider
	if cfg.BookingAPIURL != "" {
		bookings = booking.NewHTTPProvider(cfg.BookingAPIURL)
	} else {
		bookings = booking.NewStaticProvider()
		log.Warn("no booking API configured; using empty in-memory provider")
	}

	sender := notify.NewLogSender(log)
	hasher := integrity.New(cfg.AppSecret, audits)
	issuer := token.NewIssuer(slipStore)

	svc := service.New(
		slipStore, issuer, hasher, bookings, sender, audits, m, log,
		cfg.BaseURL, cfg.AccessGrace,
	)
	aggregator := compliance.New(slipStore)

	// Reminder scheduler, with a Redis run lease when Redis is configured.
	schedOpts := []reminder.Option{}
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		healthChecks["redis"] = redisClient
		lease := reminder.NewRedisLock(redisClient.Client, "slipgate:reminder-lease", cfg.Reminder.TickInterval)
		schedOpts = append(schedOpts, reminder.WithLock(lease))
	}
	scheduler := reminder.New(
		slipStore, sender, audits, m, log,
		cfg.Reminder, cfg.BaseURL,
		schedOpts...,
	)
	go scheduler.Run(ctx)

	jwtValidator := middleware.NewHMACValidator(cfg.JWTSigningKey)

	var publicMiddleware []func(http.Handler) http.Handler
	if redisClient != nil {
		limiter := middleware.NewRateLimiter(redisClient.Client, log, 60, time.Minute)
		publicMiddleware = append(publicMiddleware, limiter.Limit)
	}

	router := httptransport.NewRouter(
		healthChecks,
		handler.New(svc, log, m, publicMiddleware...),
		handler.NewAdmin(svc, aggregator, scheduler, audits, log, m, jwtValidator),
	)

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting slipgate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// dbChecker adapts *sql.DB to the health surface.
type dbChecker struct{ db *sql.DB }

func (c dbChecker) Health(ctx context.Context) error { return c.db.PingContext(ctx) }
