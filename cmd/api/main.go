package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/freightbid-backend/api/controllers"
	"github.com/angelmondragon/freightbid-backend/api/routes"
	"github.com/angelmondragon/freightbid-backend/internal/replies"
	"github.com/angelmondragon/freightbid-backend/internal/shipments"
	"github.com/angelmondragon/freightbid-backend/pkg/config"
	"github.com/angelmondragon/freightbid-backend/pkg/db"
	"github.com/angelmondragon/freightbid-backend/pkg/instance"
	"github.com/angelmondragon/freightbid-backend/pkg/logger"
	"github.com/angelmondragon/freightbid-backend/pkg/migrate"
	"github.com/angelmondragon/freightbid-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	shipmentService, err := shipments.NewService(shipments.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create shipment service", err)
		os.Exit(1)
	}

	deps := routes.Deps{
		Config:    cfg,
		Logger:    logg,
		Shipments: shipmentService,
		Ready:     map[string]controllers.Pinger{"database": dbClient},
		Gatherer:  prometheus.DefaultGatherer,
	}

	// Without Redis the API still serves reads and creates; idempotency keys,
	// rate limits and the reply webhook are off.
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		deps.Redis = redisClient
		deps.Ready["redis"] = redisClient

		if cfg.Feed.NormalizedKind() == config.FeedKindRedis {
			sink, err := replies.NewRedisStreamFeed(redisClient, replies.RedisStreamOptions{
				Stream:    cfg.Feed.Stream,
				Group:     cfg.Feed.Group,
				Consumer:  instance.GetID(),
				BatchSize: cfg.Feed.BatchSize,
			}, logg)
			if err != nil {
				logg.Error(context.Background(), "failed to create reply feed", err)
				os.Exit(1)
			}
			deps.ReplySink = sink
		}
	} else {
		logg.Warn(context.Background(), "redis not configured; idempotency, rate limits and reply intake disabled")
	}

	addr := ":" + cfg.App.Port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}
