package repository

import (
	"context"
	"errors"
	"fmt"

	availerrors "agencydesk/internal/availability/errors"
	"agencydesk/pkg/config"
	mongodb "agencydesk/pkg/db/mongo"
	"agencydesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	AvailabilityCollectionName = "Availability"
)

// AvailabilityRepository stores one set per (agency, date). Writes after the
// first are compare-and-set on the version.
type AvailabilityRepository interface {
	Get(ctx context.Context, agencyID, date string) (*model.AvailabilitySet, error)
	// Create fails with ErrAlreadyExists when the (agency, date) key is taken.
	Create(ctx context.Context, set *model.AvailabilitySet) error
	// Replace stores set only when the stored version equals expectedVersion.
	Replace(ctx context.Context, set *model.AvailabilitySet, expectedVersion int64) error
}

type mongoAvailabilityRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoAvailabilityRepository(cfg *config.Config) AvailabilityRepository {
	return &mongoAvailabilityRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(AvailabilityCollectionName),
	}
}

func (r *mongoAvailabilityRepository) Get(ctx context.Context, agencyID, date string) (*model.AvailabilitySet, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var set model.AvailabilitySet
	err := r.collection.FindOne(ctx, bson.M{"_id": model.AvailabilityID(agencyID, date)}).Decode(&set)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, availerrors.ErrSetNotFound
		}
		return nil, fmt.Errorf("failed to find availability %s/%s: %w", agencyID, date, err)
	}
	return &set, nil
}

func (r *mongoAvailabilityRepository) Create(ctx context.Context, set *model.AvailabilitySet) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	set.ID = model.AvailabilityID(set.AgencyID, set.Date)
	if _, err := r.collection.InsertOne(ctx, set); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return availerrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create availability %s: %w", set.ID, err)
	}
	return nil
}

func (r *mongoAvailabilityRepository) Replace(ctx context.Context, set *model.AvailabilitySet, expectedVersion int64) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	set.ID = model.AvailabilityID(set.AgencyID, set.Date)
	filter := bson.M{"_id": set.ID, "version": expectedVersion}
	result, err := r.collection.ReplaceOne(ctx, filter, set)
	if err != nil {
		return fmt.Errorf("failed to replace availability %s: %w", set.ID, err)
	}
	if result.MatchedCount == 0 {
		return availerrors.ErrVersionConflict
	}
	return nil
}
