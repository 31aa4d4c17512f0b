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
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	BlockedSlotCollectionName = "Blocked_slots"
)

// BlockedSlotRepository relies on a unique index over (agency_id, date, time).
type BlockedSlotRepository interface {
	// Insert fails with ErrAlreadyBlocked on a duplicate slot.
	Insert(ctx context.Context, slot *model.BlockedSlot) error
	Find(ctx context.Context, agencyID, date, slot string) (*model.BlockedSlot, error)
	ListByDate(ctx context.Context, agencyID, date string) ([]*model.BlockedSlot, error)
	// Delete fails with ErrNotBlocked when no record exists.
	Delete(ctx context.Context, agencyID, date, slot string) error
}

type mongoBlockedSlotRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoBlockedSlotRepository(cfg *config.Config) BlockedSlotRepository {
	return &mongoBlockedSlotRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(BlockedSlotCollectionName),
	}
}

func (r *mongoBlockedSlotRepository) Insert(ctx context.Context, slot *model.BlockedSlot) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, slot); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return availerrors.ErrAlreadyBlocked
		}
		return fmt.Errorf("failed to insert blocked slot: %w", err)
	}
	return nil
}

func (r *mongoBlockedSlotRepository) Find(ctx context.Context, agencyID, date, slot string) (*model.BlockedSlot, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var blocked model.BlockedSlot
	err := r.collection.FindOne(ctx, bson.M{"agency_id": agencyID, "date": date, "time": slot}).Decode(&blocked)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, availerrors.ErrNotBlocked
		}
		return nil, fmt.Errorf("failed to find blocked slot: %w", err)
	}
	return &blocked, nil
}

func (r *mongoBlockedSlotRepository) ListByDate(ctx context.Context, agencyID, date string) ([]*model.BlockedSlot, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "time", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"agency_id": agencyID, "date": date}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked slots: %w", err)
	}
	defer cursor.Close(ctx)

	var slots []*model.BlockedSlot
	if err := cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode blocked slots: %w", err)
	}
	return slots, nil
}

func (r *mongoBlockedSlotRepository) Delete(ctx context.Context, agencyID, date, slot string) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"agency_id": agencyID, "date": date, "time": slot})
	if err != nil {
		return fmt.Errorf("failed to delete blocked slot: %w", err)
	}
	if result.DeletedCount == 0 {
		return availerrors.ErrNotBlocked
	}
	return nil
}
