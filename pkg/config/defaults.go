package config

import "time"

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	NotifierKafka = "kafka"
	NotifierRedis = "redis"
	NotifierLog   = "log"
)

const (
	DefaultStoreDriver = StoreMongo

	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "agencydesk"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPostgresDSN             = "host=localhost user=agencydesk dbname=agencydesk port=5432 sslmode=disable TimeZone=UTC"
	DefaultPostgresMaxOpenConns    = 20
	DefaultPostgresMaxIdleConns    = 5
	DefaultPostgresConnMaxLifetime = 30 * time.Minute

	DefaultNotifierDriver    = NotifierLog
	DefaultNotifierQueueSize = 1024
	DefaultNotifierWorkers   = 2

	DefaultKafkaTopic = "agencydesk.events"

	DefaultRedisAddr          = "localhost:6379"
	DefaultRedisDB            = 0
	DefaultRedisChannelPrefix = "agencydesk"

	DefaultTimeZone = "UTC"

	DefaultLockCacheSize          = 4096
	DefaultAvailabilityMaxRetries = 5
	DefaultReaperLockInterval     = 10 * time.Minute
	DefaultReaperSlotInterval     = 1 * time.Minute

	DefaultPort      = "8080"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultLogMaxSizeMB  = 50
	DefaultLogMaxBackups = 5
	DefaultLogMaxAgeDays = 14

	DefaultRateLimitRPS   = 5.0
	DefaultRateLimitBurst = 20

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)
