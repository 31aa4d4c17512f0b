package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	lockserrors "agencydesk/internal/locks/errors"
	"agencydesk/internal/locks/repository"
	"agencydesk/pkg/clock"
	"agencydesk/pkg/config"
	apperrors "agencydesk/pkg/errors"
	"agencydesk/pkg/model"
	"agencydesk/pkg/notify"

	"github.com/google/uuid"
)

const (
	LockTTL = 5 * time.Minute

	maxAcquireAttempts = 3

	messageAvailable = "Available for processing"
)

type LockService interface {
	// Acquire grants the lock or reports false when another staff member holds it.
	Acquire(ctx context.Context, requestID string, staff model.Staff) (bool, error)
	Release(ctx context.Context, requestID, staffID string) error
	Extend(ctx context.Context, requestID, staffID string) (bool, error)
	ForceRelease(ctx context.Context, requestID string) error
	IsLocked(ctx context.Context, requestID string) (bool, error)
	// Holder returns the holder id, or "" when the request is free.
	Holder(ctx context.Context, requestID string) (string, error)
	Status(ctx context.Context, requestID string) (*model.LockStatus, error)
	IsHeldBy(ctx context.Context, requestID, staffID string) (bool, error)
	ReapExpired(ctx context.Context) (int, error)
}

type lockService struct {
	repo      repository.LockRepository
	publisher notify.Publisher
	clock     clock.Clock
	cache     *holderCache
	cfg       *config.Config
}

func NewLockService(
	repo repository.LockRepository,
	publisher notify.Publisher,
	clk clock.Clock,
	cfg *config.Config,
) LockService {
	return &lockService{
		repo:      repo,
		publisher: publisher,
		clock:     clk,
		cache:     newHolderCache(cfg.LockCacheSize),
		cfg:       cfg,
	}
}

func (s *lockService) Acquire(ctx context.Context, requestID string, staff model.Staff) (bool, error) {
	if requestID == "" {
		return false, apperrors.InvalidInput("Request ID cannot be empty")
	}
	if staff.ID == "" {
		return false, apperrors.InvalidInput("Staff ID cannot be empty")
	}

	for range maxAcquireAttempts {
		now := s.clock.Now()
		current, err := s.repo.FindActive(ctx, requestID)
		if err != nil && !errors.Is(err, lockserrors.ErrNoActiveLock) {
			s.cfg.Log.Error("Failed to read lock", "request_id", requestID, "error", err)
			return false, apperrors.Internal("Failed to acquire lock", err)
		}

		if current != nil && current.IsCurrent(now) {
			if current.HolderID == staff.ID {
				s.remember(current)
				return true, nil
			}
			return false, nil
		}

		next := &model.Lock{
			ID:         uuid.New().String(),
			RequestID:  requestID,
			HolderID:   staff.ID,
			HolderName: staff.DisplayName(),
			AcquiredAt: now,
			ExpiresAt:  now.Add(LockTTL),
			Active:     true,
		}

		if current != nil {
			err = s.repo.Supersede(ctx, current, model.ReleaseReasonExpired, now, next)
			if err == nil {
				s.announceExpired(ctx, current)
			}
		} else {
			err = s.repo.Insert(ctx, next)
		}

		switch {
		case err == nil:
			s.remember(next)
			s.announce(ctx, statusOf(next, model.LockGranted))
			s.cfg.Log.Info("Lock granted",
				"request_id", requestID,
				"staff_id", staff.ID,
				"expires_at", next.ExpiresAt,
			)
			return true, nil
		case errors.Is(err, lockserrors.ErrAlreadyLocked):
			// Lost the race to another writer; re-read and report its holder.
			continue
		default:
			s.cfg.Log.Error("Failed to store lock", "request_id", requestID, "error", err)
			return false, apperrors.Internal("Failed to acquire lock", err)
		}
	}

	s.cfg.Log.Warn("Lock acquisition gave up after contention", "request_id", requestID, "staff_id", staff.ID)
	return false, nil
}

func (s *lockService) Release(ctx context.Context, requestID, staffID string) error {
	current, err := s.current(ctx, requestID)
	if err != nil {
		return err
	}
	if current == nil {
		return noActiveLock(requestID)
	}
	if current.HolderID != staffID {
		return notOwner(current)
	}

	ok, err := s.repo.Deactivate(ctx, current.ID, model.ReleaseReasonReleased, s.clock.Now())
	if err != nil {
		return apperrors.Internal("Failed to release lock", err)
	}
	s.cache.invalidate(requestID)
	if !ok {
		return noActiveLock(requestID)
	}

	s.announce(ctx, releasedStatus(current, model.LockReleased))
	s.cfg.Log.Info("Lock released", "request_id", requestID, "staff_id", staffID)
	return nil
}

func (s *lockService) Extend(ctx context.Context, requestID, staffID string) (bool, error) {
	current, err := s.current(ctx, requestID)
	if err != nil {
		return false, err
	}
	if current == nil || current.HolderID != staffID {
		return false, nil
	}

	now := s.clock.Now()
	expiresAt := now.Add(LockTTL)
	ok, err := s.repo.Extend(ctx, current.ID, staffID, now, expiresAt)
	if err != nil {
		return false, apperrors.Internal("Failed to extend lock", err)
	}
	if !ok {
		s.cache.invalidate(requestID)
		return false, nil
	}

	current.ExpiresAt = expiresAt
	s.remember(current)
	s.announce(ctx, statusOf(current, model.LockExtended))
	s.cfg.Log.Debug("Lock extended", "request_id", requestID, "staff_id", staffID, "expires_at", expiresAt)
	return true, nil
}

func (s *lockService) ForceRelease(ctx context.Context, requestID string) error {
	current, err := s.current(ctx, requestID)
	if err != nil {
		return err
	}
	if current == nil {
		return noActiveLock(requestID)
	}

	ok, err := s.repo.Deactivate(ctx, current.ID, model.ReleaseReasonForced, s.clock.Now())
	if err != nil {
		return apperrors.Internal("Failed to force release lock", err)
	}
	s.cache.invalidate(requestID)
	if !ok {
		return noActiveLock(requestID)
	}

	s.announce(ctx, releasedStatus(current, model.LockForced))
	s.cfg.Log.Warn("Lock force released", "request_id", requestID, "holder_id", current.HolderID)
	return nil
}

func (s *lockService) IsLocked(ctx context.Context, requestID string) (bool, error) {
	current, err := s.current(ctx, requestID)
	if err != nil {
		return false, err
	}
	return current != nil, nil
}

// Holder reads the store and refreshes the cache from it. The cached holder
// is only served when the store cannot be read.
func (s *lockService) Holder(ctx context.Context, requestID string) (string, error) {
	current, err := s.current(ctx, requestID)
	if err != nil {
		if entry, ok := s.cache.get(requestID, s.clock.Now()); ok && !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
			s.cfg.Log.Warn("Serving cached lock holder", "request_id", requestID, "holder_id", entry.HolderID, "error", err)
			return entry.HolderID, nil
		}
		return "", err
	}
	if current == nil {
		return "", nil
	}
	s.remember(current)
	return current.HolderID, nil
}

func (s *lockService) Status(ctx context.Context, requestID string) (*model.LockStatus, error) {
	current, err := s.current(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return &model.LockStatus{RequestID: requestID, Message: messageAvailable}, nil
	}
	return statusOf(current, ""), nil
}

func (s *lockService) IsHeldBy(ctx context.Context, requestID, staffID string) (bool, error) {
	current, err := s.current(ctx, requestID)
	if err != nil {
		return false, err
	}
	return current != nil && current.HolderID == staffID, nil
}

func (s *lockService) ReapExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	expired, err := s.repo.FindExpired(ctx, now)
	if err != nil {
		return 0, apperrors.Internal("Failed to list expired locks", err)
	}

	reaped := 0
	for _, lock := range expired {
		ok, err := s.repo.Deactivate(ctx, lock.ID, model.ReleaseReasonExpired, now)
		if err != nil {
			s.cfg.Log.Error("Failed to expire lock", "request_id", lock.RequestID, "lock_id", lock.ID, "error", err)
			continue
		}
		if ok {
			reaped++
			s.announceExpired(ctx, lock)
		}
	}

	if reaped > 0 {
		s.cfg.Log.Info("Expired locks released", "count", reaped)
	}
	return reaped, nil
}

// current returns the live lock for a request, or nil. An active row past its
// deadline is deactivated on the way.
func (s *lockService) current(ctx context.Context, requestID string) (*model.Lock, error) {
	if requestID == "" {
		return nil, apperrors.InvalidInput("Request ID cannot be empty")
	}

	lock, err := s.repo.FindActive(ctx, requestID)
	if err != nil {
		if errors.Is(err, lockserrors.ErrNoActiveLock) {
			s.cache.invalidate(requestID)
			return nil, nil
		}
		s.cfg.Log.Error("Failed to read lock", "request_id", requestID, "error", err)
		return nil, apperrors.Internal("Failed to read lock", err)
	}

	now := s.clock.Now()
	if lock.IsCurrent(now) {
		return lock, nil
	}

	ok, err := s.repo.Deactivate(ctx, lock.ID, model.ReleaseReasonExpired, now)
	if err != nil {
		return nil, apperrors.Internal("Failed to expire lock", err)
	}
	if ok {
		s.announceExpired(ctx, lock)
	}
	s.cache.invalidate(requestID)
	return nil, nil
}

func (s *lockService) remember(lock *model.Lock) {
	s.cache.put(lock.RequestID, holderEntry{
		HolderID:   lock.HolderID,
		HolderName: lock.HolderName,
		ExpiresAt:  lock.ExpiresAt,
	})
}

func (s *lockService) announceExpired(ctx context.Context, lock *model.Lock) {
	s.cache.invalidate(lock.RequestID)
	s.announce(ctx, releasedStatus(lock, model.LockExpired))
	s.cfg.Log.Info("Lock expired", "request_id", lock.RequestID, "holder_id", lock.HolderID)
}

func (s *lockService) announce(ctx context.Context, status *model.LockStatus) {
	s.publisher.Publish(ctx, notify.TopicLockStatus, status)
	s.publisher.Publish(ctx, notify.LockTopic(status.RequestID), status)
}

func statusOf(lock *model.Lock, event string) *model.LockStatus {
	expiresAt := lock.ExpiresAt
	return &model.LockStatus{
		RequestID:  lock.RequestID,
		Locked:     true,
		HolderID:   lock.HolderID,
		HolderName: lock.HolderName,
		ExpiresAt:  &expiresAt,
		Event:      event,
		Message:    fmt.Sprintf("Being processed by %s", holderLabel(lock)),
	}
}

func releasedStatus(lock *model.Lock, event string) *model.LockStatus {
	return &model.LockStatus{
		RequestID:  lock.RequestID,
		Locked:     false,
		HolderID:   lock.HolderID,
		HolderName: lock.HolderName,
		Event:      event,
		Message:    messageAvailable,
	}
}

func holderLabel(lock *model.Lock) string {
	if lock.HolderName != "" {
		return lock.HolderName
	}
	return lock.HolderID
}

func noActiveLock(requestID string) error {
	return apperrors.NotFoundWithID("Active lock", requestID).WithCause(lockserrors.ErrNoActiveLock)
}

func notOwner(lock *model.Lock) error {
	return apperrors.NotOwner(fmt.Sprintf("Request is being processed by %s", holderLabel(lock))).
		WithDetails(map[string]any{
			"request_id":  lock.RequestID,
			"holder_id":   lock.HolderID,
			"holder_name": lock.HolderName,
			"expires_at":  lock.ExpiresAt,
		}).
		WithCause(lockserrors.ErrNotOwner)
}
