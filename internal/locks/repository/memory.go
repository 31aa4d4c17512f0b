package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	lockserrors "agencydesk/internal/locks/errors"
	"agencydesk/pkg/model"
)

// MemoryLockRepository keeps lock rows in process. The mutex stands in for the
// unique index on active rows.
type MemoryLockRepository struct {
	mu     sync.Mutex
	rows   map[string]*model.Lock
	active map[string]string // request id -> lock id
}

func NewMemoryLockRepository() *MemoryLockRepository {
	return &MemoryLockRepository{
		rows:   make(map[string]*model.Lock),
		active: make(map[string]string),
	}
}

func (r *MemoryLockRepository) FindActive(_ context.Context, requestID string) (*model.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.active[requestID]
	if !ok {
		return nil, lockserrors.ErrNoActiveLock
	}
	lock := *r.rows[id]
	return &lock, nil
}

func (r *MemoryLockRepository) Insert(_ context.Context, lock *model.Lock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(lock)
}

func (r *MemoryLockRepository) Supersede(_ context.Context, stale *model.Lock, reason string, at time.Time, next *model.Lock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.deactivateLocked(stale.ID, reason, at) {
		return lockserrors.ErrAlreadyLocked
	}
	return r.insertLocked(next)
}

func (r *MemoryLockRepository) Deactivate(_ context.Context, id, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deactivateLocked(id, reason, at), nil
}

func (r *MemoryLockRepository) Extend(_ context.Context, id, holderID string, now, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || !row.Active || row.HolderID != holderID || row.ExpiresAt.Before(now) {
		return false, nil
	}
	row.ExpiresAt = expiresAt
	return true, nil
}

func (r *MemoryLockRepository) FindExpired(_ context.Context, now time.Time) ([]*model.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var locks []*model.Lock
	for _, id := range r.active {
		row := r.rows[id]
		if row.ExpiresAt.Before(now) {
			lock := *row
			locks = append(locks, &lock)
		}
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].ExpiresAt.Before(locks[j].ExpiresAt) })
	return locks, nil
}

// History returns every row recorded for a request, oldest first.
func (r *MemoryLockRepository) History(requestID string) []model.Lock {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Lock
	for _, row := range r.rows {
		if row.RequestID == requestID {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcquiredAt.Before(out[j].AcquiredAt) })
	return out
}

func (r *MemoryLockRepository) insertLocked(lock *model.Lock) error {
	if lock.Active {
		if _, taken := r.active[lock.RequestID]; taken {
			return lockserrors.ErrAlreadyLocked
		}
		r.active[lock.RequestID] = lock.ID
	}
	row := *lock
	r.rows[lock.ID] = &row
	return nil
}

func (r *MemoryLockRepository) deactivateLocked(id, reason string, at time.Time) bool {
	row, ok := r.rows[id]
	if !ok || !row.Active {
		return false
	}
	row.Active = false
	row.ReleasedAt = &at
	row.ReleaseReason = reason
	delete(r.active, row.RequestID)
	return true
}
