package catalog

import (
	"context"
	"errors"
	"fmt"

	"agencydesk/pkg/config"
	mongodb "agencydesk/pkg/db/mongo"
	"agencydesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Agencies"

type mongoCatalog struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoCatalog(cfg *config.Config) Store {
	return &mongoCatalog{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CollectionName),
	}
}

func (c *mongoCatalog) Get(ctx context.Context, id string) (*model.Agency, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()

	var agency model.Agency
	if err := c.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&agency); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAgencyNotFound
		}
		return nil, fmt.Errorf("failed to find agency %s: %w", id, err)
	}
	return &agency, nil
}

func (c *mongoCatalog) List(ctx context.Context) ([]*model.Agency, error) {
	ctx, cancel := mongodb.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()

	cursor, err := c.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list agencies: %w", err)
	}
	defer cursor.Close(ctx)

	var agencies []*model.Agency
	if err := cursor.All(ctx, &agencies); err != nil {
		return nil, fmt.Errorf("failed to decode agencies: %w", err)
	}
	return agencies, nil
}

func (c *mongoCatalog) Upsert(ctx context.Context, agency *model.Agency) error {
	ctx, cancel := mongodb.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	_, err := c.collection.ReplaceOne(ctx, bson.M{"_id": agency.ID}, agency, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert agency %s: %w", agency.ID, err)
	}
	return nil
}
