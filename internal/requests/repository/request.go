package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	requesterrors "agencydesk/internal/requests/errors"
	"agencydesk/pkg/config"
	mongodb "agencydesk/pkg/db/mongo"
	"agencydesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Requests"

	DefaultLimit = 50
	MaxLimit     = 200
)

// Filter narrows List. Empty fields match everything.
type Filter struct {
	AgencyID    string
	RequesterID string
	Status      model.RequestStatus
	Limit       int
	Offset      int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	}
	return f.Limit
}

// RequestRepository stores requests. At most one open request per requester;
// the store enforces this with a unique index on requester_id over open rows.
type RequestRepository interface {
	// Create fails with ErrActiveRequestExists when the requester already has an open request.
	Create(ctx context.Context, request *model.Request) error
	FindByID(ctx context.Context, id string) (*model.Request, error)
	FindOpenByRequester(ctx context.Context, requesterID string) (*model.Request, error)
	// UpdateIfStatus replaces the stored request only while its status is still
	// expected. Otherwise it fails with ErrStatusChanged.
	UpdateIfStatus(ctx context.Context, request *model.Request, expected model.RequestStatus) error
	FindConfirmedBetween(ctx context.Context, agencyID string, from, to time.Time) ([]*model.Request, error)
	FindPendingPreferredBetween(ctx context.Context, agencyID string, from, to time.Time) ([]*model.Request, error)
	List(ctx context.Context, filter Filter) ([]*model.Request, error)
}

type mongoRequestRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoRequestRepository(cfg *config.Config) RequestRepository {
	return &mongoRequestRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CollectionName),
	}
}

func (r *mongoRequestRepository) Create(ctx context.Context, request *model.Request) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, request); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return requesterrors.ErrActiveRequestExists
		}
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

func (r *mongoRequestRepository) FindByID(ctx context.Context, id string) (*model.Request, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoRequestRepository) FindOpenByRequester(ctx context.Context, requesterID string) (*model.Request, error) {
	return r.findOne(ctx, bson.M{"requester_id": requesterID, "open": true})
}

func (r *mongoRequestRepository) findOne(ctx context.Context, filter bson.M) (*model.Request, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var request model.Request
	if err := r.collection.FindOne(ctx, filter).Decode(&request); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, requesterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find request: %w", err)
	}
	return &request, nil
}

func (r *mongoRequestRepository) UpdateIfStatus(ctx context.Context, request *model.Request, expected model.RequestStatus) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": request.ID, "status": expected}, request)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return requesterrors.ErrActiveRequestExists
		}
		return fmt.Errorf("failed to update request %s: %w", request.ID, err)
	}
	if result.MatchedCount == 0 {
		return requesterrors.ErrStatusChanged
	}
	return nil
}

func (r *mongoRequestRepository) FindConfirmedBetween(ctx context.Context, agencyID string, from, to time.Time) ([]*model.Request, error) {
	return r.find(ctx, bson.M{
		"agency_id": agencyID,
		"status":    model.StatusConfirmed,
		"start_at":  bson.M{"$gte": from.UTC(), "$lt": to.UTC()},
	}, options.Find().SetSort(bson.D{{Key: "start_at", Value: 1}}))
}

func (r *mongoRequestRepository) FindPendingPreferredBetween(ctx context.Context, agencyID string, from, to time.Time) ([]*model.Request, error) {
	return r.find(ctx, bson.M{
		"agency_id":    agencyID,
		"status":       model.StatusPending,
		"preferred_at": bson.M{"$gte": from.UTC(), "$lt": to.UTC()},
	}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (r *mongoRequestRepository) List(ctx context.Context, filter Filter) ([]*model.Request, error) {
	query := bson.M{}
	if filter.AgencyID != "" {
		query["agency_id"] = filter.AgencyID
	}
	if filter.RequesterID != "" {
		query["requester_id"] = filter.RequesterID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(filter.limit())).
		SetSkip(int64(filter.Offset))
	return r.find(ctx, query, opts)
}

func (r *mongoRequestRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Request, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer cursor.Close(ctx)

	var requests []*model.Request
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode requests: %w", err)
	}
	return requests, nil
}
