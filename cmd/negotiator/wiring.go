package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/freightbid-backend/internal/carriers"
	"github.com/angelmondragon/freightbid-backend/internal/dispatch"
	"github.com/angelmondragon/freightbid-backend/internal/pricing"
	"github.com/angelmondragon/freightbid-backend/internal/replies"
	"github.com/angelmondragon/freightbid-backend/pkg/config"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
	"github.com/angelmondragon/freightbid-backend/pkg/instance"
	"github.com/angelmondragon/freightbid-backend/pkg/logger"
	"github.com/angelmondragon/freightbid-backend/pkg/pubsub"
	"github.com/angelmondragon/freightbid-backend/pkg/redis"
)

// buildOracle chains the pattern matcher with the LLM extractor when the
// feature flag is on. Extraction faults never escape the oracle.
func buildOracle(cfg *config.Config, logg *logger.Logger) (pricing.Oracle, error) {
	extractors := []pricing.Extractor{pricing.PatternExtractor{}}
	if cfg.FeatureFlags.LLMPricing {
		opts := []pricing.LLMOption{
			pricing.WithModel(cfg.OpenAI.Model),
			pricing.WithRequestsPerMinute(cfg.OpenAI.RequestsPerMinute),
		}
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, pricing.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		llm, err := pricing.NewLLMExtractor(cfg.OpenAI.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("llm extractor: %w", err)
		}
		extractors = append(extractors, llm)
	}
	return pricing.Safe(pricing.Chain(extractors...), logg), nil
}

// buildMailer returns nil when SMTP is not configured, which is only allowed
// if every carrier is priced over the API.
func buildMailer(cfg config.SMTPConfig, dir *carriers.Directory) (dispatch.Mailer, error) {
	if cfg.Host == "" {
		for _, c := range dir.All() {
			if c.Channel == enums.CarrierChannelEmail {
				return nil, fmt.Errorf("carrier %q is contacted by email but smtp is not configured", c.Name)
			}
		}
		return nil, nil
	}
	mailer, err := dispatch.NewSMTPMailer(cfg)
	if err != nil {
		return nil, err
	}
	return mailer, nil
}

type feedDeps struct {
	redis  *redis.Client
	pubsub func(ctx context.Context) (*pubsub.Client, error)
}

// buildFeed opens the configured reply feed. The returned closer releases
// any client the feed owns.
func buildFeed(ctx context.Context, cfg *config.Config, deps feedDeps, logg *logger.Logger) (replies.Feed, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Feed.NormalizedKind() {
	case config.FeedKindRedis:
		if deps.redis == nil {
			return nil, noop, fmt.Errorf("redis reply feed requires %s", config.EnvRedisURL)
		}
		feed, err := replies.NewRedisStreamFeed(deps.redis, replies.RedisStreamOptions{
			Stream:    cfg.Feed.Stream,
			Group:     cfg.Feed.Group,
			Consumer:  instance.GetID(),
			BatchSize: cfg.Feed.BatchSize,
			ClaimIdle: cfg.Feed.ClaimIdle,
		}, logg)
		return feed, noop, err
	case config.FeedKindPubSub:
		if deps.pubsub == nil {
			return nil, noop, fmt.Errorf("pubsub reply feed not available")
		}
		client, err := deps.pubsub(ctx)
		if err != nil {
			return nil, noop, err
		}
		feed, err := replies.NewPubSubFeed(client.ReplySubscription(), cfg.Feed.DrainWindow, logg)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return feed, client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported feed kind %q", cfg.Feed.Kind)
	}
}

// sideServer exposes liveness and metrics on the metrics port.
func sideServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	r := chi.NewRouter()
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}
