package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	lockserrors "agencydesk/internal/locks/errors"
	"agencydesk/pkg/config"
	mongodb "agencydesk/pkg/db/mongo"
	"agencydesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	CollectionName = "Request_locks"
)

// LockRepository stores lock rows. At most one row per request may be active;
// the backing store enforces this with a unique index on request_id over active rows.
type LockRepository interface {
	// FindActive returns the active row for a request, expired or not.
	FindActive(ctx context.Context, requestID string) (*model.Lock, error)
	// Insert fails with ErrAlreadyLocked when an active row already exists.
	Insert(ctx context.Context, lock *model.Lock) error
	// Supersede deactivates stale and inserts next as one unit. It fails with
	// ErrAlreadyLocked when stale was already deactivated or next collides.
	Supersede(ctx context.Context, stale *model.Lock, reason string, at time.Time, next *model.Lock) error
	// Deactivate flips an active row to inactive. False when it was no longer active.
	Deactivate(ctx context.Context, id, reason string, at time.Time) (bool, error)
	// Extend moves the deadline of an active, unexpired row owned by holderID.
	Extend(ctx context.Context, id, holderID string, now, expiresAt time.Time) (bool, error)
	FindExpired(ctx context.Context, now time.Time) ([]*model.Lock, error)
}

type mongoLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongodb.TransactionManager
}

func NewMongoLockRepository(cfg *config.Config) LockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLockRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongodb.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoLockRepository) FindActive(ctx context.Context, requestID string) (*model.Lock, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var lock model.Lock
	err := r.collection.FindOne(ctx, bson.M{"request_id": requestID, "active": true}).Decode(&lock)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, lockserrors.ErrNoActiveLock
		}
		return nil, fmt.Errorf("failed to find lock for request %s: %w", requestID, err)
	}
	return &lock, nil
}

func (r *mongoLockRepository) Insert(ctx context.Context, lock *model.Lock) error {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return lockserrors.ErrAlreadyLocked
		}
		return fmt.Errorf("failed to insert lock: %w", err)
	}
	return nil
}

func (r *mongoLockRepository) Supersede(ctx context.Context, stale *model.Lock, reason string, at time.Time, next *model.Lock) error {
	return r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		ok, err := r.Deactivate(sessCtx, stale.ID, reason, at)
		if err != nil {
			return err
		}
		if !ok {
			return lockserrors.ErrAlreadyLocked
		}
		return r.Insert(sessCtx, next)
	})
}

func (r *mongoLockRepository) Deactivate(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "active": true},
		bson.M{"$set": bson.M{
			"active":         false,
			"released_at":    at,
			"release_reason": reason,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate lock %s: %w", id, err)
	}
	return result.ModifiedCount == 1, nil
}

func (r *mongoLockRepository) Extend(ctx context.Context, id, holderID string, now, expiresAt time.Time) (bool, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateOne(ctx,
		bson.M{
			"_id":        id,
			"holder_id":  holderID,
			"active":     true,
			"expires_at": bson.M{"$gte": now},
		},
		bson.M{"$set": bson.M{"expires_at": expiresAt}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to extend lock %s: %w", id, err)
	}
	return result.MatchedCount == 1, nil
}

func (r *mongoLockRepository) FindExpired(ctx context.Context, now time.Time) ([]*model.Lock, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"active": true, "expires_at": bson.M{"$lt": now}})
	if err != nil {
		return nil, fmt.Errorf("failed to find expired locks: %w", err)
	}
	defer cursor.Close(ctx)

	var locks []*model.Lock
	if err := cursor.All(ctx, &locks); err != nil {
		return nil, fmt.Errorf("failed to decode expired locks: %w", err)
	}
	return locks, nil
}
