package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/freightbid-backend/internal/carriers"
	"github.com/angelmondragon/freightbid-backend/internal/cron"
	"github.com/angelmondragon/freightbid-backend/internal/dispatch"
	"github.com/angelmondragon/freightbid-backend/internal/negotiation"
	"github.com/angelmondragon/freightbid-backend/internal/replies"
	"github.com/angelmondragon/freightbid-backend/internal/shipments"
	"github.com/angelmondragon/freightbid-backend/pkg/config"
	"github.com/angelmondragon/freightbid-backend/pkg/db"
	"github.com/angelmondragon/freightbid-backend/pkg/instance"
	"github.com/angelmondragon/freightbid-backend/pkg/logger"
	"github.com/angelmondragon/freightbid-backend/pkg/metrics"
	"github.com/angelmondragon/freightbid-backend/pkg/migrate"
	"github.com/angelmondragon/freightbid-backend/pkg/outbox"
	"github.com/angelmondragon/freightbid-backend/pkg/pubsub"
	"github.com/angelmondragon/freightbid-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single reconciliation cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "negotiator"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "negotiator"

	logg = logger.New(logger.Options{
		ServiceName: "negotiator",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOnErr(ctx, logg, "failed to bootstrap database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	exitOnErr(ctx, logg, "failed to run dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		exitOnErr(ctx, logg, "failed to bootstrap redis", err)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

	directory, err := carriers.Load(cfg.Carriers.File)
	exitOnErr(ctx, logg, "failed to load carriers", err)
	logg.Info(logg.WithField(ctx, "carriers", directory.Names()), "carrier directory loaded")

	registerer := prometheus.DefaultRegisterer
	negotiationMetrics := metrics.NewNegotiationMetrics(registerer)
	cycleMetrics := metrics.NewCycleMetrics(registerer)

	mailer, err := buildMailer(cfg.SMTP, directory)
	exitOnErr(ctx, logg, "failed to configure smtp", err)
	dispatcher := dispatch.NewDispatcher(dispatch.Options{
		Mailer:      mailer,
		Pricing:     dispatch.NewPricingClient(),
		CompanyName: cfg.Negotiation.CompanyName,
		Timeout:     cfg.Negotiation.DispatchTimeout,
		Metrics:     negotiationMetrics,
		Logger:      logg,
	})

	oracle, err := buildOracle(cfg, logg)
	exitOnErr(ctx, logg, "failed to configure price extraction", err)

	feed, closeFeed, err := buildFeed(ctx, cfg, feedDeps{
		redis: redisClient,
		pubsub: func(ctx context.Context) (*pubsub.Client, error) {
			return pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		},
	}, logg)
	exitOnErr(ctx, logg, "failed to open reply feed", err)
	defer func() {
		if err := closeFeed(); err != nil {
			logg.Error(context.Background(), "error closing reply feed", err)
		}
	}()

	repo := shipments.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	ledger, err := shipments.NewLedger(repo, dbClient, outbox.NewService(outboxRepo, logg), logg)
	exitOnErr(ctx, logg, "failed to create ledger", err)

	reconciler, err := replies.NewReconciler(replies.ReconcilerOptions{
		Feed:      feed,
		Ledger:    repo,
		Directory: directory,
		Oracle:    oracle,
		Metrics:   negotiationMetrics,
		Logger:    logg,
	})
	exitOnErr(ctx, logg, "failed to create reply reconciler", err)

	orchestrator, err := negotiation.NewOrchestrator(negotiation.Options{
		Store:      repo,
		Completer:  ledger,
		Dispatcher: dispatcher,
		Directory:  directory,
		BatchSize:  cfg.Negotiation.BatchSize,
		Metrics:    negotiationMetrics,
		Logger:     logg,
	})
	exitOnErr(ctx, logg, "failed to create orchestrator", err)

	reaper, err := negotiation.NewReaper(orchestrator, cfg.Negotiation.StaleAfter)
	exitOnErr(ctx, logg, "failed to create reaper", err)

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.RetentionDays,
	})
	exitOnErr(ctx, logg, "failed to create outbox retention job", err)

	registry := cron.NewRegistry(cron.NegotiationJobs(reconciler, orchestrator, reaper)...)
	registry.Register(retention)

	var lock cron.Lock = &cron.LocalLock{}
	if redisClient != nil {
		lock, err = cron.NewRedisLock(redisClient, redisClient.LockKey("negotiator", "cycle"), instance.GetID(), cfg.Negotiation.LockTTL)
		exitOnErr(ctx, logg, "failed to create cycle lock", err)
	} else {
		logg.Warn(ctx, "redis not configured; cycle lock is process local, run a single negotiator")
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cycleMetrics,
		Interval: cfg.Negotiation.PollInterval,
	})
	exitOnErr(ctx, logg, "failed to create cycle service", err)

	if *once {
		exitOnErr(ctx, logg, "cycle failed", service.RunOnce(ctx))
		return
	}

	side := sideServer(":"+cfg.App.MetricsPort, prometheus.DefaultGatherer)
	go func() {
		if err := side.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	defer func() {
		_ = side.Shutdown(context.WithoutCancel(ctx))
	}()

	logg.Info(logg.WithField(ctx, "interval", cfg.Negotiation.PollInterval.String()), "starting negotiator")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "negotiator stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "negotiator shutting down gracefully")
}

func exitOnErr(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
