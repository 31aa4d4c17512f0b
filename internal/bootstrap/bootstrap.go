package bootstrap

import (
	"context"
	"errors"
	"fmt"

	availabilityhandler "agencydesk/internal/availability/handler"
	availabilityrepo "agencydesk/internal/availability/repository"
	availabilityservice "agencydesk/internal/availability/service"
	availabilityvalidator "agencydesk/internal/availability/validator"
	"agencydesk/internal/catalog"
	lockshandler "agencydesk/internal/locks/handler"
	locksrepo "agencydesk/internal/locks/repository"
	locksservice "agencydesk/internal/locks/service"
	"agencydesk/internal/reaper"
	requestshandler "agencydesk/internal/requests/handler"
	requestsrepo "agencydesk/internal/requests/repository"
	requestsservice "agencydesk/internal/requests/service"
	requestsvalidator "agencydesk/internal/requests/validator"
	"agencydesk/pkg/clock"
	"agencydesk/pkg/config"
	"agencydesk/pkg/kafka"
	kafka_config "agencydesk/pkg/kafka/config"
	kafka_middleware "agencydesk/pkg/kafka/middleware"
	"agencydesk/pkg/notify"

	"github.com/julienschmidt/httprouter"
	"gorm.io/gorm"
)

// Repositories is the storage layer for one store driver.
type Repositories struct {
	Locks    locksrepo.LockRepository
	Requests requestsrepo.RequestRepository
	Sets     availabilityrepo.AvailabilityRepository
	Blocked  availabilityrepo.BlockedSlotRepository
	Agencies catalog.Store
}

// Desk wires the three core services, their handlers and the reaper.
type Desk struct {
	cfg *config.Config

	Repos        Repositories
	Notifier     *notify.Async
	KafkaMetrics *kafka_middleware.Metrics

	Locks        locksservice.LockService
	Availability availabilityservice.AvailabilityService
	Requests     requestsservice.RequestService
	Reaper       *reaper.Reaper
}

func NewDesk(ctx context.Context, cfg *config.Config, serviceName string) (*Desk, error) {
	repos, err := NewRepositories(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.CatalogSeedFile != "" {
		if err := SeedCatalog(ctx, cfg, repos.Agencies); err != nil {
			return nil, err
		}
	}

	sink, metrics, err := newSink(cfg, serviceName)
	if err != nil {
		return nil, err
	}
	notifier := notify.NewAsync(sink, cfg.Log, cfg.NotifierQueueSize, cfg.NotifierWorkers)

	d := Assemble(cfg, repos, notifier, clock.System())
	d.Notifier = notifier
	d.KafkaMetrics = metrics

	cfg.Log.Info("Desk services initialized",
		"store_driver", cfg.StoreDriver,
		"notifier_driver", cfg.NotifierDriver,
	)
	return d, nil
}

// Assemble builds the services over existing repositories.
func Assemble(cfg *config.Config, repos Repositories, publisher notify.Publisher, clk clock.Clock) *Desk {
	d := &Desk{cfg: cfg, Repos: repos}
	d.wireServices(publisher, clk)
	return d
}

func (d *Desk) wireServices(publisher notify.Publisher, clk clock.Clock) {
	d.Locks = locksservice.NewLockService(d.Repos.Locks, publisher, clk, d.cfg)
	d.Availability = availabilityservice.NewAvailabilityService(
		d.Repos.Sets,
		d.Repos.Blocked,
		d.Repos.Agencies,
		d.Repos.Requests,
		publisher,
		clk,
		d.cfg,
	)
	d.Requests = requestsservice.NewRequestService(
		d.Repos.Requests,
		d.Locks,
		d.Availability,
		d.Repos.Agencies,
		requestsvalidator.NewRequestValidator(d.cfg.Log),
		publisher,
		clk,
		d.cfg,
	)
	d.Reaper = reaper.NewReaper(d.Locks, d.Availability, d.cfg)
}

func (d *Desk) RegisterRoutes(router *httprouter.Router) {
	lockshandler.NewLockHandler(d.Locks, d.cfg.Log).RegisterRoutes(router)
	availabilityhandler.NewAvailabilityHandler(
		d.Availability,
		availabilityvalidator.NewBlockedSlotValidator(d.cfg.Log),
		d.cfg.Log,
	).RegisterRoutes(router)
	requestshandler.NewRequestHandler(d.Requests, d.cfg.Log).RegisterRoutes(router)
}

// Close drains pending notifications. Connections are closed by cfg.GracefulShutdown.
func (d *Desk) Close(ctx context.Context) error {
	if d.Notifier == nil {
		return nil
	}
	if err := d.Notifier.Close(ctx); err != nil {
		return fmt.Errorf("close notifier: %w", err)
	}
	return nil
}

// NewRepositories opens the configured store and builds every repository on it.
func NewRepositories(cfg *config.Config) (Repositories, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		cfg.SetMongo()
		return Repositories{
			Locks:    locksrepo.NewMongoLockRepository(cfg),
			Requests: requestsrepo.NewMongoRequestRepository(cfg),
			Sets:     availabilityrepo.NewMongoAvailabilityRepository(cfg),
			Blocked:  availabilityrepo.NewMongoBlockedSlotRepository(cfg),
			Agencies: catalog.NewMongoCatalog(cfg),
		}, nil

	case config.StorePostgres:
		cfg.SetPostgres()
		if err := MigrateSQL(cfg.Client.SQL); err != nil {
			return Repositories{}, err
		}
		return NewGormRepositories(cfg.Client.SQL), nil

	case config.StoreMemory:
		return NewMemoryRepositories(), nil
	}
	return Repositories{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func NewGormRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Locks:    locksrepo.NewGormLockRepository(db),
		Requests: requestsrepo.NewGormRequestRepository(db),
		Sets:     availabilityrepo.NewGormAvailabilityRepository(db),
		Blocked:  availabilityrepo.NewGormBlockedSlotRepository(db),
		Agencies: catalog.NewGormCatalog(db),
	}
}

func NewMemoryRepositories() Repositories {
	return Repositories{
		Locks:    locksrepo.NewMemoryLockRepository(),
		Requests: requestsrepo.NewMemoryRequestRepository(),
		Sets:     availabilityrepo.NewMemoryAvailabilityRepository(),
		Blocked:  availabilityrepo.NewMemoryBlockedSlotRepository(),
		Agencies: catalog.NewMemoryCatalog(),
	}
}

// MigrateSQL creates the SQL schema for every module.
func MigrateSQL(db *gorm.DB) error {
	steps := []struct {
		name    string
		migrate func(*gorm.DB) error
	}{
		{"catalog", catalog.Migrate},
		{"locks", locksrepo.Migrate},
		{"availability", availabilityrepo.Migrate},
		{"requests", requestsrepo.Migrate},
	}
	for _, step := range steps {
		if err := step.migrate(db); err != nil {
			return fmt.Errorf("migrate %s: %w", step.name, err)
		}
	}
	return nil
}

func SeedCatalog(ctx context.Context, cfg *config.Config, store catalog.Store) error {
	agencies, err := catalog.LoadSeedFile(cfg.CatalogSeedFile)
	if err != nil {
		return fmt.Errorf("load catalog seed: %w", err)
	}
	if err := catalog.Seed(ctx, store, agencies); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	cfg.Log.Info("Agency catalog seeded", "file", cfg.CatalogSeedFile, "agencies", len(agencies))
	return nil
}

func newSink(cfg *config.Config, serviceName string) (notify.Sink, *kafka_middleware.Metrics, error) {
	switch cfg.NotifierDriver {
	case config.NotifierKafka:
		kafkaCfg, err := kafka_config.Load()
		if err != nil {
			return nil, nil, fmt.Errorf("kafka config: %w", err)
		}
		producer, err := kafka.NewProducer(kafkaCfg, cfg.KafkaTopic, cfg.KafkaDLQTopic, cfg.Log)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		var metrics *kafka_middleware.Metrics
		if kafkaCfg.EnableMiddleware {
			metrics = kafka_middleware.NewMetrics()
			producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
			producer.Use(metrics.Middleware())
		}
		cfg.Log.Info("Kafka notifier configured", "topic", cfg.KafkaTopic, "brokers", kafkaCfg.Brokers)
		return notify.NewKafkaSink(producer, serviceName), metrics, nil

	case config.NotifierRedis:
		cfg.SetRedis()
		return notify.NewRedisSink(cfg.Client.Redis, notify.WithChannelPrefix(cfg.RedisChannelPrefix)), nil, nil

	case config.NotifierLog:
		return notify.NewLogSink(cfg.Log), nil, nil
	}
	return nil, nil, errors.New("unknown notifier driver " + cfg.NotifierDriver)
}
