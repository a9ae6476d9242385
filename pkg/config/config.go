package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	HTTP         HTTPConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Negotiation  NegotiationConfig
	Carriers     CarriersConfig
	Feed         FeedConfig
	SMTP         SMTPConfig
	OpenAI       OpenAIConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Feed.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FREIGHTBID_APP_ENV" required:"true"`
	Port         string `envconfig:"FREIGHTBID_APP_PORT" default:"8080"`
	MetricsPort  string `envconfig:"FREIGHTBID_METRICS_PORT" default:"9090"`
	LogLevel     string `envconfig:"FREIGHTBID_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FREIGHTBID_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// HTTPConfig covers the public API surface.
type HTTPConfig struct {
	CORSOrigins     []string      `envconfig:"FREIGHTBID_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow time.Duration `envconfig:"FREIGHTBID_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP  int           `envconfig:"FREIGHTBID_RATE_LIMIT_PER_IP" default:"120"`
	// ReplyWebhookToken guards POST /api/v1/replies; empty disables the check.
	ReplyWebhookToken string `envconfig:"FREIGHTBID_REPLY_WEBHOOK_TOKEN"`
}

type ServiceConfig struct {
	Kind string `envconfig:"FREIGHTBID_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FREIGHTBID_DB_DSN"`
	Driver string `envconfig:"FREIGHTBID_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FREIGHTBID_DB_HOST"`
	LegacyPort     int    `envconfig:"FREIGHTBID_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FREIGHTBID_DB_USER"`
	LegacyPassword string `envconfig:"FREIGHTBID_DB_PASSWORD"`
	LegacyName     string `envconfig:"FREIGHTBID_DB_NAME"`
	LegacySSLMode  string `envconfig:"FREIGHTBID_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FREIGHTBID_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FREIGHTBID_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FREIGHTBID_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FREIGHTBID_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FREIGHTBID_REDIS_URL"`
	Address      string        `envconfig:"FREIGHTBID_REDIS_ADDR"`
	Password     string        `envconfig:"FREIGHTBID_REDIS_PASSWORD"`
	DB           int           `envconfig:"FREIGHTBID_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FREIGHTBID_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FREIGHTBID_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FREIGHTBID_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FREIGHTBID_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FREIGHTBID_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FREIGHTBID_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FREIGHTBID_AUTO_MIGRATE" default:"false"`
	// LLMPricing enables the OpenAI extractor behind the pattern matcher.
	LLMPricing bool `envconfig:"FREIGHTBID_FEATURE_LLM_PRICING" default:"false"`
}

// NegotiationConfig drives the reconciliation loop.
type NegotiationConfig struct {
	PollInterval    time.Duration `envconfig:"FREIGHTBID_POLL_INTERVAL" default:"60s"`
	StaleAfter      time.Duration `envconfig:"FREIGHTBID_STALE_AFTER" default:"48h"`
	DispatchTimeout time.Duration `envconfig:"FREIGHTBID_DISPATCH_TIMEOUT" default:"30s"`
	BatchSize       int           `envconfig:"FREIGHTBID_NEGOTIATION_BATCH_SIZE" default:"200"`
	CompanyName     string        `envconfig:"FREIGHTBID_COMPANY_NAME" default:"Freight Desk"`
	LockTTL         time.Duration `envconfig:"FREIGHTBID_CYCLE_LOCK_TTL" default:"15m"`
}

type CarriersConfig struct {
	File string `envconfig:"FREIGHTBID_CARRIERS_FILE" default:"carriers.yaml"`
}

// FeedConfig selects where carrier replies are drained from.
type FeedConfig struct {
	Kind        string        `envconfig:"FREIGHTBID_FEED_KIND" default:"redis"`
	Stream      string        `envconfig:"FREIGHTBID_FEED_STREAM" default:"freightbid:replies"`
	Group       string        `envconfig:"FREIGHTBID_FEED_GROUP" default:"negotiator"`
	BatchSize   int           `envconfig:"FREIGHTBID_FEED_BATCH_SIZE" default:"100"`
	DrainWindow time.Duration `envconfig:"FREIGHTBID_FEED_DRAIN_WINDOW" default:"5s"`
	ClaimIdle   time.Duration `envconfig:"FREIGHTBID_FEED_CLAIM_IDLE" default:"15m"`
}

func (f FeedConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(f.Kind)) {
	case FeedKindRedis, FeedKindPubSub:
		return nil
	default:
		return fmt.Errorf("unsupported %s %q", EnvFeedKind, f.Kind)
	}
}

// NormalizedKind returns the lower-cased feed kind.
func (f FeedConfig) NormalizedKind() string {
	return strings.ToLower(strings.TrimSpace(f.Kind))
}

type SMTPConfig struct {
	Host     string `envconfig:"FREIGHTBID_SMTP_HOST"`
	Port     int    `envconfig:"FREIGHTBID_SMTP_PORT" default:"465"`
	Username string `envconfig:"FREIGHTBID_SMTP_USERNAME"`
	Password string `envconfig:"FREIGHTBID_SMTP_PASSWORD"`
	From     string `envconfig:"FREIGHTBID_SMTP_FROM"`
	SSL      bool   `envconfig:"FREIGHTBID_SMTP_SSL" default:"true"`
}

type OpenAIConfig struct {
	APIKey  string `envconfig:"FREIGHTBID_OPENAI_API_KEY"`
	Model   string `envconfig:"FREIGHTBID_OPENAI_MODEL" default:"gpt-4o-mini"`
	BaseURL string `envconfig:"FREIGHTBID_OPENAI_BASE_URL"`
	// RequestsPerMinute throttles extraction calls; zero disables throttling.
	RequestsPerMinute int `envconfig:"FREIGHTBID_OPENAI_REQUESTS_PER_MINUTE" default:"60"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"FREIGHTBID_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	ReplySubscription string `envconfig:"FREIGHTBID_PUBSUB_REPLY_SUBSCRIPTION"`
	EventsTopic       string `envconfig:"FREIGHTBID_PUBSUB_EVENTS_TOPIC" default:"freightbid-shipment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FREIGHTBID_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FREIGHTBID_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FREIGHTBID_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"FREIGHTBID_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if sqlite {
		db.Driver = DriverSQLite
		if db.DSN == "" {
			db.DSN = defaultSQLiteDSN
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
