package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	requesterrors "agencydesk/internal/requests/errors"
	"agencydesk/pkg/model"
)

type MemoryRequestRepository struct {
	mu       sync.Mutex
	requests map[string]*model.Request
	open     map[string]string // requester id -> request id
}

func NewMemoryRequestRepository() *MemoryRequestRepository {
	return &MemoryRequestRepository{
		requests: make(map[string]*model.Request),
		open:     make(map[string]string),
	}
}

func clone(r *model.Request) *model.Request {
	c := *r
	return &c
}

func (r *MemoryRequestRepository) Create(_ context.Context, request *model.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := clone(request)
	stored.Open = stored.Status.IsOpen()
	if stored.Open {
		if _, taken := r.open[stored.RequesterID]; taken {
			return requesterrors.ErrActiveRequestExists
		}
		r.open[stored.RequesterID] = stored.ID
	}
	r.requests[stored.ID] = stored
	return nil
}

func (r *MemoryRequestRepository) FindByID(_ context.Context, id string) (*model.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	request, ok := r.requests[id]
	if !ok {
		return nil, requesterrors.ErrNotFound
	}
	return clone(request), nil
}

func (r *MemoryRequestRepository) FindOpenByRequester(_ context.Context, requesterID string) (*model.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.open[requesterID]
	if !ok {
		return nil, requesterrors.ErrNotFound
	}
	return clone(r.requests[id]), nil
}

func (r *MemoryRequestRepository) UpdateIfStatus(_ context.Context, request *model.Request, expected model.RequestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.requests[request.ID]
	if !ok || current.Status != expected {
		return requesterrors.ErrStatusChanged
	}

	stored := clone(request)
	stored.Open = stored.Status.IsOpen()
	if !stored.Open {
		delete(r.open, stored.RequesterID)
	}
	r.requests[stored.ID] = stored
	return nil
}

func (r *MemoryRequestRepository) FindConfirmedBetween(_ context.Context, agencyID string, from, to time.Time) ([]*model.Request, error) {
	return r.collect(func(q *model.Request) bool {
		return q.AgencyID == agencyID && q.Status == model.StatusConfirmed && within(q.StartAt, from, to)
	}), nil
}

func (r *MemoryRequestRepository) FindPendingPreferredBetween(_ context.Context, agencyID string, from, to time.Time) ([]*model.Request, error) {
	return r.collect(func(q *model.Request) bool {
		return q.AgencyID == agencyID && q.Status == model.StatusPending && within(q.PreferredAt, from, to)
	}), nil
}

func (r *MemoryRequestRepository) List(_ context.Context, filter Filter) ([]*model.Request, error) {
	all := r.collect(func(q *model.Request) bool {
		return (filter.AgencyID == "" || q.AgencyID == filter.AgencyID) &&
			(filter.RequesterID == "" || q.RequesterID == filter.RequesterID) &&
			(filter.Status == "" || q.Status == filter.Status)
	})
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Offset >= len(all) {
		return []*model.Request{}, nil
	}
	all = all[filter.Offset:]
	if limit := filter.limit(); len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRequestRepository) collect(match func(*model.Request) bool) []*model.Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Request
	for _, q := range r.requests {
		if match(q) {
			out = append(out, clone(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func within(t *time.Time, from, to time.Time) bool {
	return t != nil && !t.Before(from) && t.Before(to)
}
