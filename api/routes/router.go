package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/freightbid-backend/api/controllers"
	"github.com/angelmondragon/freightbid-backend/api/middleware"
	"github.com/angelmondragon/freightbid-backend/internal/replies"
	"github.com/angelmondragon/freightbid-backend/internal/shipments"
	"github.com/angelmondragon/freightbid-backend/pkg/config"
	"github.com/angelmondragon/freightbid-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/freightbid-backend/pkg/redis"
)

// redisStore is the Redis surface used by the rate limiter and the
// idempotency middleware.
type redisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(parts ...string) string
}

// Deps are the collaborators the API routes need. Redis, ReplySink and
// Gatherer are optional.
type Deps struct {
	Config    *config.Config
	Logger    *logger.Logger
	Shipments shipments.Service
	ReplySink replies.Sink
	Redis     redisStore
	Ready     map[string]controllers.Pinger
	Gatherer  prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	var limiter func(string) func(http.Handler) http.Handler
	if deps.Redis != nil {
		store := deps.Redis
		limiter = func(name string) func(http.Handler) http.Handler {
			policy := middleware.NewRateLimitPolicy(name, cfg.HTTP.RateLimitWindow, cfg.HTTP.RateLimitPerIP, 0)
			if name == "replies" {
				policy = middleware.NewRateLimitPolicy(name, cfg.HTTP.RateLimitWindow, cfg.HTTP.RateLimitPerIP, cfg.HTTP.RateLimitPerIP)
			}
			return middleware.RateLimit(policy, store, logg)
		}
	} else {
		limiter = func(string) func(http.Handler) http.Handler {
			return func(next http.Handler) http.Handler { return next }
		}
	}

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Redis != nil {
			r.Use(middleware.Idempotency(deps.Redis, logg))
		}

		r.Route("/shipments", func(r chi.Router) {
			r.With(limiter("shipments")).Post("/", controllers.CreateShipment(deps.Shipments, logg))
			r.Get("/", controllers.ListShipments(deps.Shipments, logg))
			r.Get("/{shipmentId}", controllers.GetShipment(deps.Shipments, logg))
			r.Get("/{shipmentId}/quotes", controllers.ListShipmentQuotes(deps.Shipments, logg))
		})
		r.Get("/stats", controllers.Stats(deps.Shipments, logg))

		r.With(
			middleware.WebhookToken(cfg.HTTP.ReplyWebhookToken, logg),
			limiter("replies"),
		).Post("/replies", controllers.ReceiveReply(deps.ReplySink, logg))
	})

	return r
}
