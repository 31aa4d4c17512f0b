package catalog

import (
	"context"
	"sort"
	"sync"

	"agencydesk/pkg/model"
)

type MemoryCatalog struct {
	mu       sync.RWMutex
	agencies map[string]*model.Agency
}

func NewMemoryCatalog(agencies ...*model.Agency) *MemoryCatalog {
	c := &MemoryCatalog{agencies: make(map[string]*model.Agency)}
	for _, a := range agencies {
		c.agencies[a.ID] = a
	}
	return c
}

func (c *MemoryCatalog) Get(_ context.Context, id string) (*model.Agency, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.agencies[id]
	if !ok {
		return nil, ErrAgencyNotFound
	}
	return a, nil
}

func (c *MemoryCatalog) List(_ context.Context) ([]*model.Agency, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Agency, 0, len(c.agencies))
	for _, a := range c.agencies {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *MemoryCatalog) Upsert(_ context.Context, agency *model.Agency) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agencies[agency.ID] = agency
	return nil
}
