package catalog

import (
	"context"
	"errors"
	"fmt"

	"agencydesk/pkg/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// agencies
type agencyRow struct {
	ID       string `gorm:"primaryKey;size:64"`
	Name     string `gorm:"size:255;not null"`
	TimeZone string `gorm:"size:64"`
	Hours    datatypes.JSONSlice[model.BusinessHours]
}

func (agencyRow) TableName() string { return "agencies" }

func (r *agencyRow) toModel() *model.Agency {
	return &model.Agency{
		ID:       r.ID,
		Name:     r.Name,
		TimeZone: r.TimeZone,
		Hours:    []model.BusinessHours(r.Hours),
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&agencyRow{})
}

type GormCatalog struct {
	db *gorm.DB
}

func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

func (c *GormCatalog) Get(ctx context.Context, id string) (*model.Agency, error) {
	var row agencyRow
	if err := c.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAgencyNotFound
		}
		return nil, fmt.Errorf("failed to find agency %s: %w", id, err)
	}
	return row.toModel(), nil
}

func (c *GormCatalog) List(ctx context.Context) ([]*model.Agency, error) {
	var rows []agencyRow
	if err := c.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list agencies: %w", err)
	}
	out := make([]*model.Agency, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (c *GormCatalog) Upsert(ctx context.Context, agency *model.Agency) error {
	row := agencyRow{
		ID:       agency.ID,
		Name:     agency.Name,
		TimeZone: agency.TimeZone,
		Hours:    datatypes.JSONSlice[model.BusinessHours](agency.Hours),
	}
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert agency %s: %w", agency.ID, err)
	}
	return nil
}
