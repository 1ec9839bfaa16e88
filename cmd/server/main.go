// Command server runs the case adjudication backbone: the risk assessment
// and work queue HTTP APIs, the outbox relay, the audit and intake
// consumers, and the periodic refresh sweeper, all sharing one process
// lifecycle.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"casework/internal/audit"
	"casework/internal/outbox/publisher/kafka"
	"casework/internal/outbox/relay"
	outboxpg "casework/internal/outbox/store/postgres"
	"casework/internal/platform/config"
	"casework/internal/platform/httpserver"
	"casework/internal/platform/jwttoken"
	"casework/internal/platform/logger"
	"casework/internal/platform/metrics"
	"casework/internal/platform/middleware"
	"casework/internal/platform/postgres"
	platformredis "casework/internal/platform/redis"
	riskhandler "casework/internal/risk/handler"
	riskmodels "casework/internal/risk/models"
	riskservice "casework/internal/risk/service"
	riskpg "casework/internal/risk/store/postgres"
	workhandler "casework/internal/work/handler"
	"casework/internal/work/intake"
	workmodels "casework/internal/work/models"
	"casework/internal/work/refresh"
	workservice "casework/internal/work/service"
	workpg "casework/internal/work/store/postgres"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		log.Error("postgres connection failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher, err := kafka.NewPublisher(ctx, cfg.Kafka)
	if err != nil {
		log.Error("kafka connection failed", "error", err.Error())
		os.Exit(1)
	}
	defer publisher.Close()

	m := metrics.New()
	validator := jwttoken.NewValidator(cfg.Server.JWTSigningKey)
	txRunner := postgres.NewTxRunner(db)
	outboxStore := outboxpg.New(db)

	riskSvc := riskservice.New(riskpg.New(db), outboxStore, txRunner,
		riskservice.WithLogger(log),
		riskservice.WithMetrics(m),
		riskservice.WithScoringPolicy(riskmodels.ScoringPolicy{FactorWeights: cfg.Risk.FactorWeights}),
	)
	workSvc := workservice.New(workpg.New(db), outboxStore, txRunner,
		workservice.WithLogger(log),
		workservice.WithMetrics(m),
		workservice.WithSchedulePolicy(workmodels.SchedulePolicy{
			ReviewSLA:        cfg.Risk.ReviewSLA,
			RefreshIntervals: cfg.Risk.RefreshIntervals,
		}),
	)

	rel := relay.New(outboxStore, publisher,
		relay.WithLogger(log),
		relay.WithMetrics(m),
		relay.WithBatchSize(cfg.Relay.BatchSize),
		relay.WithPollInterval(cfg.Relay.PollInterval),
		relay.WithMaxBackoff(cfg.Relay.MaxBackoff),
	)

	var guard audit.Guard = audit.PassthroughGuard{}
	if redisClient != nil {
		guard = audit.NewRedisGuard(redisClient.Client)
	}
	auditConsumer, err := audit.NewConsumer(cfg.Kafka, guard, audit.NewPostgresStore(db),
		audit.WithLogger(log),
		audit.WithMetrics(m),
	)
	if err != nil {
		log.Error("audit consumer setup failed", "error", err.Error())
		os.Exit(1)
	}
	defer auditConsumer.Close()

	intakeConsumer, err := intake.NewConsumer(cfg.Kafka, workSvc, intake.WithLogger(log))
	if err != nil {
		log.Error("intake consumer setup failed", "error", err.Error())
		os.Exit(1)
	}
	defer intakeConsumer.Close()

	sweeper := refresh.New(workSvc,
		refresh.WithLogger(log),
		refresh.WithInterval(cfg.Refresh.SweepInterval),
	)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Logger(log))
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	riskhandler.New(riskSvc, log, validator).Register(router)
	workhandler.New(workSvc, log, validator).Register(router)

	srv := httpserver.New(cfg.Server.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return ignoreCancel(rel.Run(groupCtx))
	})
	group.Go(func() error {
		return ignoreCancel(auditConsumer.Run(groupCtx))
	})
	group.Go(func() error {
		return ignoreCancel(intakeConsumer.Run(groupCtx))
	})
	group.Go(func() error {
		return ignoreCancel(sweeper.Run(groupCtx))
	})

	if err := group.Wait(); err != nil {
		log.Error("shutdown with error", "error", err.Error())
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
