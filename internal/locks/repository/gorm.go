package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	lockserrors "agencydesk/internal/locks/errors"
	"agencydesk/pkg/model"

	"gorm.io/gorm"
)

// request_locks
type lockRow struct {
	ID            string     `gorm:"primaryKey;size:64"`
	RequestID     string     `gorm:"size:64;not null;index"`
	HolderID      string     `gorm:"size:64;not null"`
	HolderName    string     `gorm:"size:255"`
	AcquiredAt    time.Time  `gorm:"not null"`
	ExpiresAt     time.Time  `gorm:"not null;index"`
	Active        bool       `gorm:"not null;index"`
	ReleasedAt    *time.Time
	ReleaseReason string `gorm:"size:32"`
}

func (lockRow) TableName() string { return "request_locks" }

func toLockRow(l *model.Lock) *lockRow {
	return &lockRow{
		ID:            l.ID,
		RequestID:     l.RequestID,
		HolderID:      l.HolderID,
		HolderName:    l.HolderName,
		AcquiredAt:    l.AcquiredAt.UTC(),
		ExpiresAt:     l.ExpiresAt.UTC(),
		Active:        l.Active,
		ReleasedAt:    l.ReleasedAt,
		ReleaseReason: l.ReleaseReason,
	}
}

func (r *lockRow) toModel() *model.Lock {
	return &model.Lock{
		ID:            r.ID,
		RequestID:     r.RequestID,
		HolderID:      r.HolderID,
		HolderName:    r.HolderName,
		AcquiredAt:    r.AcquiredAt,
		ExpiresAt:     r.ExpiresAt,
		Active:        r.Active,
		ReleasedAt:    r.ReleasedAt,
		ReleaseReason: r.ReleaseReason,
	}
}

// Migrate creates request_locks and the index that allows one active row per request.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&lockRow{}); err != nil {
		return err
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_request_locks_active ON request_locks (request_id) WHERE active`).Error
}

type GormLockRepository struct {
	db *gorm.DB
}

func NewGormLockRepository(db *gorm.DB) *GormLockRepository {
	return &GormLockRepository{db: db}
}

func (r *GormLockRepository) FindActive(ctx context.Context, requestID string) (*model.Lock, error) {
	var row lockRow
	err := r.db.WithContext(ctx).
		Where("request_id = ? AND active = ?", requestID, true).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, lockserrors.ErrNoActiveLock
		}
		return nil, fmt.Errorf("failed to find lock for request %s: %w", requestID, err)
	}
	return row.toModel(), nil
}

func (r *GormLockRepository) Insert(ctx context.Context, lock *model.Lock) error {
	return insertLock(r.db.WithContext(ctx), lock)
}

func (r *GormLockRepository) Supersede(ctx context.Context, stale *model.Lock, reason string, at time.Time, next *model.Lock) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := deactivateLock(tx, stale.ID, reason, at)
		if err != nil {
			return err
		}
		if !ok {
			return lockserrors.ErrAlreadyLocked
		}
		return insertLock(tx, next)
	})
}

func (r *GormLockRepository) Deactivate(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	return deactivateLock(r.db.WithContext(ctx), id, reason, at)
}

func (r *GormLockRepository) Extend(ctx context.Context, id, holderID string, now, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&lockRow{}).
		Where("id = ? AND holder_id = ? AND active = ? AND expires_at >= ?", id, holderID, true, now.UTC()).
		Update("expires_at", expiresAt.UTC())
	if res.Error != nil {
		return false, fmt.Errorf("failed to extend lock %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormLockRepository) FindExpired(ctx context.Context, now time.Time) ([]*model.Lock, error) {
	var rows []lockRow
	err := r.db.WithContext(ctx).
		Where("active = ? AND expires_at < ?", true, now.UTC()).
		Order("expires_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired locks: %w", err)
	}

	locks := make([]*model.Lock, 0, len(rows))
	for i := range rows {
		locks = append(locks, rows[i].toModel())
	}
	return locks, nil
}

func insertLock(db *gorm.DB, lock *model.Lock) error {
	if err := db.Create(toLockRow(lock)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return lockserrors.ErrAlreadyLocked
		}
		return fmt.Errorf("failed to insert lock: %w", err)
	}
	return nil
}

func deactivateLock(db *gorm.DB, id, reason string, at time.Time) (bool, error) {
	at = at.UTC()
	res := db.Model(&lockRow{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]any{
			"active":         false,
			"released_at":    &at,
			"release_reason": reason,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to deactivate lock %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}
