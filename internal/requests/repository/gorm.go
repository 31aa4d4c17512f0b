package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	requesterrors "agencydesk/internal/requests/errors"
	"agencydesk/pkg/model"

	"gorm.io/gorm"
)

// requests
type requestRow struct {
	ID              string `gorm:"primaryKey;size:64"`
	RequesterID     string `gorm:"size:64;not null;index"`
	AgencyID        string `gorm:"size:64;not null;index:ix_requests_agency_status"`
	ServiceID       string `gorm:"size:64"`
	Description     string `gorm:"type:text"`
	PreferredAt     *time.Time
	StartAt         *time.Time
	EndAt           *time.Time
	Status          string `gorm:"size:16;not null;index:ix_requests_agency_status"`
	Open            bool   `gorm:"not null"`
	HandledByID     string `gorm:"size:64"`
	HandledByName   string `gorm:"size:255"`
	ConfirmNote     string `gorm:"type:text"`
	CancelReason    string `gorm:"type:text"`
	CompletionNotes string `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt       time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (requestRow) TableName() string { return "requests" }

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func toRequestRow(r *model.Request) *requestRow {
	return &requestRow{
		ID:              r.ID,
		RequesterID:     r.RequesterID,
		AgencyID:        r.AgencyID,
		ServiceID:       r.ServiceID,
		Description:     r.Description,
		PreferredAt:     utcPtr(r.PreferredAt),
		StartAt:         utcPtr(r.StartAt),
		EndAt:           utcPtr(r.EndAt),
		Status:          string(r.Status),
		Open:            r.Status.IsOpen(),
		HandledByID:     r.HandledByID,
		HandledByName:   r.HandledByName,
		ConfirmNote:     r.ConfirmNote,
		CancelReason:    r.CancelReason,
		CompletionNotes: r.CompletionNotes,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func (r *requestRow) toModel() *model.Request {
	return &model.Request{
		ID:              r.ID,
		RequesterID:     r.RequesterID,
		AgencyID:        r.AgencyID,
		ServiceID:       r.ServiceID,
		Description:     r.Description,
		PreferredAt:     r.PreferredAt,
		StartAt:         r.StartAt,
		EndAt:           r.EndAt,
		Status:          model.RequestStatus(r.Status),
		Open:            r.Open,
		HandledByID:     r.HandledByID,
		HandledByName:   r.HandledByName,
		ConfirmNote:     r.ConfirmNote,
		CancelReason:    r.CancelReason,
		CompletionNotes: r.CompletionNotes,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// Migrate creates requests and the index that allows one open request per requester.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&requestRow{}); err != nil {
		return err
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_requests_open_requester ON requests (requester_id) WHERE open`).Error
}

type GormRequestRepository struct {
	db *gorm.DB
}

func NewGormRequestRepository(db *gorm.DB) *GormRequestRepository {
	return &GormRequestRepository{db: db}
}

func (r *GormRequestRepository) Create(ctx context.Context, request *model.Request) error {
	if err := r.db.WithContext(ctx).Create(toRequestRow(request)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return requesterrors.ErrActiveRequestExists
		}
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

func (r *GormRequestRepository) FindByID(ctx context.Context, id string) (*model.Request, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *GormRequestRepository) FindOpenByRequester(ctx context.Context, requesterID string) (*model.Request, error) {
	return r.first(r.db.WithContext(ctx).Where("requester_id = ? AND open = ?", requesterID, true))
}

func (r *GormRequestRepository) first(query *gorm.DB) (*model.Request, error) {
	var row requestRow
	if err := query.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, requesterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find request: %w", err)
	}
	return row.toModel(), nil
}

func (r *GormRequestRepository) UpdateIfStatus(ctx context.Context, request *model.Request, expected model.RequestStatus) error {
	row := toRequestRow(request)
	res := r.db.WithContext(ctx).
		Model(&requestRow{}).
		Where("id = ? AND status = ?", row.ID, string(expected)).
		Updates(map[string]any{
			"preferred_at":     row.PreferredAt,
			"start_at":         row.StartAt,
			"end_at":           row.EndAt,
			"status":           row.Status,
			"open":             row.Open,
			"handled_by_id":    row.HandledByID,
			"handled_by_name":  row.HandledByName,
			"confirm_note":     row.ConfirmNote,
			"cancel_reason":    row.CancelReason,
			"completion_notes": row.CompletionNotes,
			"updated_at":       row.UpdatedAt,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return requesterrors.ErrActiveRequestExists
		}
		return fmt.Errorf("failed to update request %s: %w", row.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return requesterrors.ErrStatusChanged
	}
	return nil
}

func (r *GormRequestRepository) FindConfirmedBetween(ctx context.Context, agencyID string, from, to time.Time) ([]*model.Request, error) {
	return r.find(r.db.WithContext(ctx).
		Where("agency_id = ? AND status = ? AND start_at >= ? AND start_at < ?",
			agencyID, string(model.StatusConfirmed), from.UTC(), to.UTC()).
		Order("start_at ASC"))
}

func (r *GormRequestRepository) FindPendingPreferredBetween(ctx context.Context, agencyID string, from, to time.Time) ([]*model.Request, error) {
	return r.find(r.db.WithContext(ctx).
		Where("agency_id = ? AND status = ? AND preferred_at >= ? AND preferred_at < ?",
			agencyID, string(model.StatusPending), from.UTC(), to.UTC()).
		Order("created_at ASC"))
}

func (r *GormRequestRepository) List(ctx context.Context, filter Filter) ([]*model.Request, error) {
	query := r.db.WithContext(ctx)
	if filter.AgencyID != "" {
		query = query.Where("agency_id = ?", filter.AgencyID)
	}
	if filter.RequesterID != "" {
		query = query.Where("requester_id = ?", filter.RequesterID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	return r.find(query.Order("created_at DESC").Limit(filter.limit()).Offset(filter.Offset))
}

func (r *GormRequestRepository) find(query *gorm.DB) ([]*model.Request, error) {
	var rows []requestRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	requests := make([]*model.Request, 0, len(rows))
	for i := range rows {
		requests = append(requests, rows[i].toModel())
	}
	return requests, nil
}
