package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"agencydesk/pkg/model"
)

var ErrAgencyNotFound = errors.New("agency not found")

// Catalog is the read side of the agency directory.
type Catalog interface {
	Get(ctx context.Context, id string) (*model.Agency, error)
	List(ctx context.Context) ([]*model.Agency, error)
}

// Store is a Catalog that can be seeded.
type Store interface {
	Catalog
	Upsert(ctx context.Context, agency *model.Agency) error
}

// LoadSeedFile reads a JSON array of agencies.
func LoadSeedFile(path string) ([]*model.Agency, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	var agencies []*model.Agency
	if err := json.Unmarshal(data, &agencies); err != nil {
		return nil, fmt.Errorf("decode catalog seed: %w", err)
	}
	for i, a := range agencies {
		if a.ID == "" {
			return nil, fmt.Errorf("catalog seed entry %d has no id", i)
		}
	}
	return agencies, nil
}

func Seed(ctx context.Context, store Store, agencies []*model.Agency) error {
	for _, a := range agencies {
		if err := store.Upsert(ctx, a); err != nil {
			return fmt.Errorf("seed agency %s: %w", a.ID, err)
		}
	}
	return nil
}
