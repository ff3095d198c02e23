// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"license-activation-service/internal/config"
	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/adapter"
	"license-activation-service/internal/infra/api"
	pg "license-activation-service/internal/infra/db/postgres"
	"license-activation-service/internal/infra/events"
	"license-activation-service/internal/infra/logging"
	"license-activation-service/internal/infra/metrics"
	red "license-activation-service/internal/infra/redis"
	"license-activation-service/internal/infra/sched"
	"license-activation-service/internal/infra/security"
	"license-activation-service/internal/infra/worker"
	"license-activation-service/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted secrets)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting license service")

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	txm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Security ----
	codec := security.NewKeyCodec(cfg.Security.KeyPepper)
	var signer usecase.Signer
	if cfg.Security.TokenSecret != "" {
		signer = security.NewTokenSigner(cfg.Security.TokenSecret, cfg.Security.TokenTTL)
	} else {
		logger.Warn().Msg("security.token_secret not set; offline tokens disabled")
	}

	// ---- Repositories ----
	credRepo := pg.NewCredentialRepo(pool)
	activationRepo := pg.NewActivationRepo(pool)
	restrictionRepo := pg.NewRestrictionRepoCacheDecorator(pg.NewRestrictionRepo(pool), redisClient, cfg.Redis.TTL)
	attemptRepo := pg.NewAttemptRepo(pool)
	rateStore := red.NewFixedWindowStore(redisClient)

	// ---- Events ----
	eventPool := worker.NewPool(cfg.Events.Workers, cfg.Events.Queue, logger)
	subs := []adapter.EventSubscriber{events.NewAuditSubscriber(logger)}
	if len(cfg.Events.KafkaBrokers) > 0 {
		ks, err := events.NewKafkaSubscriber(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka subscriber")
		}
		defer ks.Close()
		subs = append(subs, ks)
		logger.Info().Strs("brokers", cfg.Events.KafkaBrokers).Str("topic", cfg.Events.KafkaTopic).Msg("kafka event subscriber enabled")
	}
	dispatcher := events.NewDispatcher(eventPool, cfg.Events.DeliveryTimeout, logger, subs...)

	// ---- Use cases ----
	policies := make(map[model.EndpointClass]model.RatePolicy, len(cfg.RateLimits))
	for class, rule := range cfg.RateLimits {
		policies[model.EndpointClass(class)] = model.RatePolicy{MaxRequests: rule.MaxRequests, Window: rule.Window}
	}
	limiter := usecase.NewRateLimiter(rateStore, policies, logger)
	attempts := usecase.NewAttemptLogger(attemptRepo, cfg.Abuse.FailureWindow, cfg.Abuse.FailureThreshold, logger)
	tracker := usecase.NewActivationTracker(activationRepo, txm, logger)
	engine := usecase.NewValidationEngine(usecase.EngineDeps{
		Credentials:  credRepo,
		Restrictions: restrictionRepo,
		Tracker:      tracker,
		Limiter:      limiter,
		Attempts:     attempts,
		Codec:        codec,
		Features:     model.NewFeatureTable(cfg.Tiers),
		Signer:       signer,
		Events:       dispatcher,
	}, logger)
	maintenance := usecase.NewMaintenance(credRepo, attempts, txm, dispatcher, logger)

	// ---- Scheduler ----
	scheduler := sched.New(red.NewLocker(redisClient), logger)
	for _, job := range []sched.Job{
		sched.ExpirySweepJob(maintenance, cfg.Scheduler.ExpiryCheckCron),
		sched.AttemptRetentionJob(maintenance, cfg.Scheduler.RetentionCron, cfg.Scheduler.RetentionDays),
		sched.SuspiciousCallersJob(attempts, "@every 5m", cfg.Abuse.FailureWindow, cfg.Abuse.FailureThreshold, logger),
		sched.DBPoolStatsJob(pool),
	} {
		if err := scheduler.Add(job); err != nil {
			logger.Fatal().Err(err).Str("job", job.Name).Msg("schedule job")
		}
	}

	// ---- HTTP ----
	server := api.NewServer(cfg.HTTP, engine, map[string]api.Check{
		"postgres": pool.Ping,
		"redis":    redisClient.Ping,
	}, logger)

	// ---- Run ----
	// Deliveries outlive the signal context so accepted events can drain.
	poolCtx, cancelPool := context.WithCancel(context.Background())
	defer cancelPool()
	eventPool.Start(poolCtx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	err = g.Wait()
	stop()
	// Let queued event deliveries finish before closing their sinks.
	drained := make(chan struct{})
	go func() {
		eventPool.Stop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("event queue not drained before shutdown")
		cancelPool()
	}
	if err != nil {
		logger.Error().Err(err).Msg("service stopped with error")
		return
	}
	logger.Info().Msg("shutdown complete")
}
