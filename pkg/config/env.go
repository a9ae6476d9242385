package config

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	FeedKindRedis  = "redis"
	FeedKindPubSub = "pubsub"

	defaultSQLiteDSN = "freightbid.db"
)

const (
	EnvAppEnv        = "FREIGHTBID_APP_ENV"
	EnvPort          = "FREIGHTBID_APP_PORT"
	EnvDBDSN         = "FREIGHTBID_DB_DSN"
	EnvDBHost        = "FREIGHTBID_DB_HOST"
	EnvDBUser        = "FREIGHTBID_DB_USER"
	EnvDBName        = "FREIGHTBID_DB_NAME"
	EnvUseSQLite     = "FREIGHTBID_USE_SQLITE"
	EnvRedisURL      = "FREIGHTBID_REDIS_URL"
	EnvPollInterval  = "FREIGHTBID_POLL_INTERVAL"
	EnvStaleAfter    = "FREIGHTBID_STALE_AFTER"
	EnvCarriersFile  = "FREIGHTBID_CARRIERS_FILE"
	EnvFeedKind      = "FREIGHTBID_FEED_KIND"
	EnvReplySub      = "FREIGHTBID_PUBSUB_REPLY_SUBSCRIPTION"
	EnvGCPProjectID  = "FREIGHTBID_GCP_PROJECT_ID"
	EnvSMTPHost      = "FREIGHTBID_SMTP_HOST"
	EnvOpenAIAPIKey  = "FREIGHTBID_OPENAI_API_KEY"
	EnvPubSubEventsT = "FREIGHTBID_PUBSUB_EVENTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
