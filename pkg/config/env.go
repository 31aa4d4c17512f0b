package config

const (
	EnvStoreDriver = "STORE_DRIVER"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPostgresDSN             = "POSTGRES_DSN"
	EnvPostgresMaxOpenConns    = "POSTGRES_MAX_OPEN_CONNS"
	EnvPostgresMaxIdleConns    = "POSTGRES_MAX_IDLE_CONNS"
	EnvPostgresConnMaxLifetime = "POSTGRES_CONN_MAX_LIFETIME"

	EnvNotifierDriver    = "NOTIFIER_DRIVER"
	EnvNotifierQueueSize = "NOTIFIER_QUEUE_SIZE"
	EnvNotifierWorkers   = "NOTIFIER_WORKERS"

	EnvKafkaTopic    = "KAFKA_EVENTS_TOPIC"
	EnvKafkaDLQTopic = "KAFKA_EVENTS_DLQ_TOPIC"

	EnvRedisAddr          = "REDIS_ADDR"
	EnvRedisPassword      = "REDIS_PASSWORD"
	EnvRedisDB            = "REDIS_DB"
	EnvRedisChannelPrefix = "REDIS_CHANNEL_PREFIX"

	EnvCatalogSeedFile = "CATALOG_SEED_FILE"
	EnvDefaultTimeZone = "DEFAULT_TIME_ZONE"

	EnvLockCacheSize          = "LOCK_CACHE_SIZE"
	EnvAvailabilityMaxRetries = "AVAILABILITY_MAX_RETRIES"
	EnvReaperLockInterval     = "REAPER_LOCK_INTERVAL"
	EnvReaperSlotInterval     = "REAPER_SLOT_INTERVAL"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvLogFormat     = "LOG_FORMAT"
	EnvLogFile       = "LOG_FILE"
	EnvLogMaxSizeMB  = "LOG_MAX_SIZE_MB"
	EnvLogMaxBackups = "LOG_MAX_BACKUPS"
	EnvLogMaxAgeDays = "LOG_MAX_AGE_DAYS"

	EnvRateLimitRPS   = "RATE_LIMIT_RPS"
	EnvRateLimitBurst = "RATE_LIMIT_BURST"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
