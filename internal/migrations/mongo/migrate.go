package mongo

import (
	"context"
	"fmt"

	availabilityrepo "agencydesk/internal/availability/repository"
	"agencydesk/internal/catalog"
	locksrepo "agencydesk/internal/locks/repository"
	"agencydesk/internal/migrations/mongo/validators"
	requestsrepo "agencydesk/internal/requests/repository"
	"agencydesk/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type collectionDef struct {
	Name      string
	Indexes   []mongo.IndexModel
	Validator bson.M
}

var (
	LockIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "request_id", Value: 1}},
			Options: options.Index().
				SetName("ux_request_locks_active").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "request_id", Value: 1}, {Key: "acquired_at", Value: 1}}},
	}

	RequestIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "requester_id", Value: 1}},
			Options: options.Index().
				SetName("ux_requests_open_requester").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"open": true}),
		},
		{Keys: bson.D{{Key: "agency_id", Value: 1}, {Key: "status", Value: 1}, {Key: "start_at", Value: 1}}},
		{Keys: bson.D{{Key: "agency_id", Value: 1}, {Key: "status", Value: 1}, {Key: "preferred_at", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
	}

	AvailabilityIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "agency_id", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("ux_availability_agency_date").SetUnique(true),
		},
		{Keys: bson.D{{Key: "date", Value: 1}}},
	}

	BlockedSlotIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "agency_id", Value: 1}, {Key: "date", Value: 1}, {Key: "time", Value: 1}},
			Options: options.Index().SetName("ux_blocked_slots_slot").SetUnique(true),
		},
	}
)

func Collections() []collectionDef {
	return []collectionDef{
		{Name: catalog.CollectionName, Validator: validators.AgencyValidator},
		{Name: locksrepo.CollectionName, Indexes: LockIndexes, Validator: validators.LockValidator},
		{Name: requestsrepo.CollectionName, Indexes: RequestIndexes, Validator: validators.RequestValidator},
		{Name: availabilityrepo.AvailabilityCollectionName, Indexes: AvailabilityIndexes, Validator: validators.AvailabilityValidator},
		{Name: availabilityrepo.BlockedSlotCollectionName, Indexes: BlockedSlotIndexes, Validator: validators.BlockedSlotValidator},
	}
}

func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	for _, def := range Collections() {
		if err := ensureCollection(ctx, db, def.Name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", def.Name, err)
		}
		if len(def.Indexes) == 0 {
			continue
		}
		if err := ensureIndexes(ctx, db, def.Name, def.Indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", def.Name, err)
		}
		log.Info("Ensured indexes", "collection", def.Name, "count", len(def.Indexes))
	}

	log.Info("All Mongo migrations applied")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel) error {
	_, err := db.Collection(name).Indexes().CreateMany(ctx, models)
	return err
}
