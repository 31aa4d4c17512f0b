package main

import (
	"context"
	"time"

	"agencydesk/internal/bootstrap"
	"agencydesk/internal/catalog"
	mongoMigration "agencydesk/internal/migrations/mongo"
	"agencydesk/pkg/config"
)

const JobName = "desk-migration"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	defer cfg.GracefulShutdown()
	cfg.Log.Info("Starting migration job", "store_driver", cfg.StoreDriver)

	var store catalog.Store
	switch cfg.StoreDriver {
	case config.StoreMongo:
		cfg.SetMongo()
		if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log); err != nil {
			cfg.Log.Fatal("Mongo migration failed", "error", err)
		}
		store = catalog.NewMongoCatalog(cfg)

	case config.StorePostgres:
		cfg.SetPostgres()
		if err := bootstrap.MigrateSQL(cfg.Client.SQL); err != nil {
			cfg.Log.Fatal("SQL migration failed", "error", err)
		}
		store = catalog.NewGormCatalog(cfg.Client.SQL)

	default:
		cfg.Log.Info("Nothing to migrate for store driver", "store_driver", cfg.StoreDriver)
		return
	}

	if cfg.CatalogSeedFile != "" {
		if err := bootstrap.SeedCatalog(ctx, cfg, store); err != nil {
			cfg.Log.Fatal("Catalog seed failed", "error", err)
		}
	}
	cfg.Log.Info("Migration completed successfully")
}
