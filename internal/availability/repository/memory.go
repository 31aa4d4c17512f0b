package repository

import (
	"context"
	"sort"
	"sync"

	availerrors "agencydesk/internal/availability/errors"
	"agencydesk/pkg/model"
)

type MemoryAvailabilityRepository struct {
	mu   sync.Mutex
	sets map[string]*model.AvailabilitySet
}

func NewMemoryAvailabilityRepository() *MemoryAvailabilityRepository {
	return &MemoryAvailabilityRepository{sets: make(map[string]*model.AvailabilitySet)}
}

func (r *MemoryAvailabilityRepository) Get(_ context.Context, agencyID, date string) (*model.AvailabilitySet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.sets[model.AvailabilityID(agencyID, date)]
	if !ok {
		return nil, availerrors.ErrSetNotFound
	}
	return set.Clone(), nil
}

func (r *MemoryAvailabilityRepository) Create(_ context.Context, set *model.AvailabilitySet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := model.AvailabilityID(set.AgencyID, set.Date)
	if _, ok := r.sets[id]; ok {
		return availerrors.ErrAlreadyExists
	}
	stored := set.Clone()
	stored.ID = id
	r.sets[id] = stored
	return nil
}

func (r *MemoryAvailabilityRepository) Replace(_ context.Context, set *model.AvailabilitySet, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := model.AvailabilityID(set.AgencyID, set.Date)
	current, ok := r.sets[id]
	if !ok || current.Version != expectedVersion {
		return availerrors.ErrVersionConflict
	}
	stored := set.Clone()
	stored.ID = id
	r.sets[id] = stored
	return nil
}

type MemoryBlockedSlotRepository struct {
	mu    sync.Mutex
	slots map[string]*model.BlockedSlot
}

func NewMemoryBlockedSlotRepository() *MemoryBlockedSlotRepository {
	return &MemoryBlockedSlotRepository{slots: make(map[string]*model.BlockedSlot)}
}

func blockedKey(agencyID, date, slot string) string {
	return agencyID + "|" + date + "|" + slot
}

func (r *MemoryBlockedSlotRepository) Insert(_ context.Context, slot *model.BlockedSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := blockedKey(slot.AgencyID, slot.Date, slot.Time)
	if _, ok := r.slots[key]; ok {
		return availerrors.ErrAlreadyBlocked
	}
	stored := *slot
	r.slots[key] = &stored
	return nil
}

func (r *MemoryBlockedSlotRepository) Find(_ context.Context, agencyID, date, slot string) (*model.BlockedSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	blocked, ok := r.slots[blockedKey(agencyID, date, slot)]
	if !ok {
		return nil, availerrors.ErrNotBlocked
	}
	out := *blocked
	return &out, nil
}

func (r *MemoryBlockedSlotRepository) ListByDate(_ context.Context, agencyID, date string) ([]*model.BlockedSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.BlockedSlot
	for _, b := range r.slots {
		if b.AgencyID == agencyID && b.Date == date {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (r *MemoryBlockedSlotRepository) Delete(_ context.Context, agencyID, date, slot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := blockedKey(agencyID, date, slot)
	if _, ok := r.slots[key]; !ok {
		return availerrors.ErrNotBlocked
	}
	delete(r.slots, key)
	return nil
}
