package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	availerrors "agencydesk/internal/availability/errors"
	"agencydesk/pkg/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// availability_sets
type availabilityRow struct {
	ID        string `gorm:"primaryKey;size:128"`
	AgencyID  string `gorm:"size:64;not null;uniqueIndex:ux_availability_agency_date"`
	Date      string `gorm:"size:10;not null;uniqueIndex:ux_availability_agency_date"`
	Available datatypes.JSONSlice[string]
	Booked    datatypes.JSONSlice[model.BookedSlot]
	Version   int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (availabilityRow) TableName() string { return "availability_sets" }

func toAvailabilityRow(s *model.AvailabilitySet) *availabilityRow {
	return &availabilityRow{
		ID:        model.AvailabilityID(s.AgencyID, s.Date),
		AgencyID:  s.AgencyID,
		Date:      s.Date,
		Available: datatypes.JSONSlice[string](s.Available),
		Booked:    datatypes.JSONSlice[model.BookedSlot](s.Booked),
		Version:   s.Version,
		UpdatedAt: s.UpdatedAt.UTC(),
	}
}

func (r *availabilityRow) toModel() *model.AvailabilitySet {
	set := &model.AvailabilitySet{
		ID:        r.ID,
		AgencyID:  r.AgencyID,
		Date:      r.Date,
		Available: []string(r.Available),
		Booked:    []model.BookedSlot(r.Booked),
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
	}
	if set.Available == nil {
		set.Available = []string{}
	}
	if set.Booked == nil {
		set.Booked = []model.BookedSlot{}
	}
	return set
}

// blocked_slots
type blockedSlotRow struct {
	ID            string    `gorm:"primaryKey;size:64"`
	AgencyID      string    `gorm:"size:64;not null;uniqueIndex:ux_blocked_slots_slot"`
	Date          string    `gorm:"size:10;not null;uniqueIndex:ux_blocked_slots_slot"`
	Time          string    `gorm:"size:5;not null;uniqueIndex:ux_blocked_slots_slot"`
	Reason        string    `gorm:"size:500"`
	BlockedByID   string    `gorm:"size:64"`
	BlockedByName string    `gorm:"size:255"`
	BlockedAt     time.Time `gorm:"not null"`
}

func (blockedSlotRow) TableName() string { return "blocked_slots" }

func (r *blockedSlotRow) toModel() *model.BlockedSlot {
	return &model.BlockedSlot{
		ID:            r.ID,
		AgencyID:      r.AgencyID,
		Date:          r.Date,
		Time:          r.Time,
		Reason:        r.Reason,
		BlockedByID:   r.BlockedByID,
		BlockedByName: r.BlockedByName,
		BlockedAt:     r.BlockedAt,
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&availabilityRow{}, &blockedSlotRow{})
}

type GormAvailabilityRepository struct {
	db *gorm.DB
}

func NewGormAvailabilityRepository(db *gorm.DB) *GormAvailabilityRepository {
	return &GormAvailabilityRepository{db: db}
}

func (r *GormAvailabilityRepository) Get(ctx context.Context, agencyID, date string) (*model.AvailabilitySet, error) {
	var row availabilityRow
	err := r.db.WithContext(ctx).First(&row, "id = ?", model.AvailabilityID(agencyID, date)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, availerrors.ErrSetNotFound
		}
		return nil, fmt.Errorf("failed to find availability %s/%s: %w", agencyID, date, err)
	}
	return row.toModel(), nil
}

func (r *GormAvailabilityRepository) Create(ctx context.Context, set *model.AvailabilitySet) error {
	if err := r.db.WithContext(ctx).Create(toAvailabilityRow(set)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return availerrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create availability %s/%s: %w", set.AgencyID, set.Date, err)
	}
	return nil
}

func (r *GormAvailabilityRepository) Replace(ctx context.Context, set *model.AvailabilitySet, expectedVersion int64) error {
	row := toAvailabilityRow(set)
	res := r.db.WithContext(ctx).
		Model(&availabilityRow{}).
		Where("id = ? AND version = ?", row.ID, expectedVersion).
		Updates(map[string]any{
			"available":  row.Available,
			"booked":     row.Booked,
			"version":    row.Version,
			"updated_at": row.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to replace availability %s: %w", row.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return availerrors.ErrVersionConflict
	}
	return nil
}

type GormBlockedSlotRepository struct {
	db *gorm.DB
}

func NewGormBlockedSlotRepository(db *gorm.DB) *GormBlockedSlotRepository {
	return &GormBlockedSlotRepository{db: db}
}

func (r *GormBlockedSlotRepository) Insert(ctx context.Context, slot *model.BlockedSlot) error {
	row := &blockedSlotRow{
		ID:            slot.ID,
		AgencyID:      slot.AgencyID,
		Date:          slot.Date,
		Time:          slot.Time,
		Reason:        slot.Reason,
		BlockedByID:   slot.BlockedByID,
		BlockedByName: slot.BlockedByName,
		BlockedAt:     slot.BlockedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return availerrors.ErrAlreadyBlocked
		}
		return fmt.Errorf("failed to insert blocked slot: %w", err)
	}
	return nil
}

func (r *GormBlockedSlotRepository) Find(ctx context.Context, agencyID, date, slot string) (*model.BlockedSlot, error) {
	var row blockedSlotRow
	err := r.db.WithContext(ctx).
		Where("agency_id = ? AND date = ? AND time = ?", agencyID, date, slot).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, availerrors.ErrNotBlocked
		}
		return nil, fmt.Errorf("failed to find blocked slot: %w", err)
	}
	return row.toModel(), nil
}

func (r *GormBlockedSlotRepository) ListByDate(ctx context.Context, agencyID, date string) ([]*model.BlockedSlot, error) {
	var rows []blockedSlotRow
	err := r.db.WithContext(ctx).
		Where("agency_id = ? AND date = ?", agencyID, date).
		Order("time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked slots: %w", err)
	}
	slots := make([]*model.BlockedSlot, 0, len(rows))
	for i := range rows {
		slots = append(slots, rows[i].toModel())
	}
	return slots, nil
}

func (r *GormBlockedSlotRepository) Delete(ctx context.Context, agencyID, date, slot string) error {
	res := r.db.WithContext(ctx).
		Where("agency_id = ? AND date = ? AND time = ?", agencyID, date, slot).
		Delete(&blockedSlotRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete blocked slot: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return availerrors.ErrNotBlocked
	}
	return nil
}
