package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"agencydesk/internal/catalog"
	requesterrors "agencydesk/internal/requests/errors"
	"agencydesk/internal/requests/repository"
	"agencydesk/internal/requests/validator"
	"agencydesk/pkg/clock"
	"agencydesk/pkg/config"
	apperrors "agencydesk/pkg/errors"
	"agencydesk/pkg/model"
	"agencydesk/pkg/notify"
	"agencydesk/pkg/sanitizer"
	"agencydesk/pkg/validation"

	"github.com/google/uuid"
)

// LockChecker answers whether a staff member currently holds a request's lock.
type LockChecker interface {
	IsHeldBy(ctx context.Context, requestID, staffID string) (bool, error)
}

// SlotKeeper is the part of the availability engine the lifecycle drives.
type SlotKeeper interface {
	HoldProvisionally(ctx context.Context, agencyID string, at time.Time, requestID string) error
	Release(ctx context.Context, agencyID string, at time.Time) error
	CommitConfirmed(ctx context.Context, request *model.Request) error
}

type RequestService interface {
	Submit(ctx context.Context, input *model.Submission) (*model.Request, error)
	Confirm(ctx context.Context, requestID string, staff model.Staff, input *model.Confirmation) (*model.Request, error)
	// Cancel accepts a nil staff when the requester cancels their own request.
	Cancel(ctx context.Context, requestID string, staff *model.Staff, input *model.Cancellation) (*model.Request, error)
	Complete(ctx context.Context, requestID string, staff model.Staff, input *model.Completion) (*model.Request, error)
	Get(ctx context.Context, requestID string) (*model.Request, error)
	List(ctx context.Context, filter repository.Filter) ([]*model.Request, error)
}

type requestService struct {
	repo      repository.RequestRepository
	locks     LockChecker
	slots     SlotKeeper
	catalog   catalog.Catalog
	validator *validator.RequestValidator
	publisher notify.Publisher
	clock     clock.Clock
	cfg       *config.Config
}

func NewRequestService(
	repo repository.RequestRepository,
	locks LockChecker,
	slots SlotKeeper,
	agencies catalog.Catalog,
	validator *validator.RequestValidator,
	publisher notify.Publisher,
	clk clock.Clock,
	cfg *config.Config,
) RequestService {
	return &requestService{
		repo:      repo,
		locks:     locks,
		slots:     slots,
		catalog:   agencies,
		validator: validator,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
	}
}

func (s *requestService) Submit(ctx context.Context, input *model.Submission) (*model.Request, error) {
	input.RequesterID = sanitizer.Identifier(input.RequesterID)
	input.AgencyID = sanitizer.Identifier(input.AgencyID)
	input.ServiceID = sanitizer.Identifier(input.ServiceID)
	input.Description = sanitizer.Text(input.Description)
	input.PreferredDate = strings.TrimSpace(input.PreferredDate)
	input.PreferredTime = strings.TrimSpace(input.PreferredTime)

	if err := s.validator.ValidateSubmission(input); err != nil {
		s.cfg.Log.Warn("Submission validation failed", "error", err)
		return nil, validationError("Submission validation failed", err)
	}

	agency, err := s.catalog.Get(ctx, input.AgencyID)
	if err != nil {
		if errors.Is(err, catalog.ErrAgencyNotFound) {
			return nil, apperrors.NotFoundWithID("Agency", input.AgencyID).WithCause(err)
		}
		s.cfg.Log.Error("Failed to read agency", "agency_id", input.AgencyID, "error", err)
		return nil, apperrors.Internal("Failed to read agency", err)
	}

	var preferredAt *time.Time
	if input.PreferredDate != "" {
		loc := agency.Location(s.cfg.Location())
		at, err := time.ParseInLocation(model.DateLayout+" "+model.SlotLayout, input.PreferredDate+" "+input.PreferredTime, loc)
		if err != nil {
			return nil, apperrors.InvalidInput("Invalid preferred date or time")
		}
		preferredAt = &at
	}

	existing, err := s.repo.FindOpenByRequester(ctx, input.RequesterID)
	switch {
	case err == nil:
		return nil, activeRequestConflict(existing.ID)
	case !errors.Is(err, requesterrors.ErrNotFound):
		s.cfg.Log.Error("Failed to check open requests", "requester_id", input.RequesterID, "error", err)
		return nil, apperrors.Internal("Failed to submit request", err)
	}

	now := s.clock.Now().UTC()
	request := &model.Request{
		ID:          uuid.New().String(),
		RequesterID: input.RequesterID,
		AgencyID:    agency.ID,
		ServiceID:   input.ServiceID,
		Description: input.Description,
		PreferredAt: preferredAt,
		Status:      model.StatusPending,
		Open:        true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, request); err != nil {
		if errors.Is(err, requesterrors.ErrActiveRequestExists) {
			return nil, activeRequestConflict("")
		}
		s.cfg.Log.Error("Failed to create request", "requester_id", input.RequesterID, "error", err)
		return nil, apperrors.Internal("Failed to submit request", err)
	}

	if preferredAt != nil {
		if err := s.slots.HoldProvisionally(ctx, request.AgencyID, *preferredAt, request.ID); err != nil {
			s.cfg.Log.Warn("Failed to hold preferred slot",
				"request_id", request.ID,
				"agency_id", request.AgencyID,
				"preferred_at", preferredAt,
				"error", err,
			)
		}
	}

	s.cfg.Log.Info("Request submitted",
		"request_id", request.ID,
		"requester_id", request.RequesterID,
		"agency_id", request.AgencyID,
	)
	s.publisher.Publish(ctx, notify.TopicRequests, model.RequestEvent{Type: model.RequestSubmitted, Request: request})
	return request, nil
}

func (s *requestService) Confirm(ctx context.Context, requestID string, staff model.Staff, input *model.Confirmation) (*model.Request, error) {
	if err := s.requireLock(ctx, requestID, staff); err != nil {
		return nil, err
	}

	input.Note = sanitizer.Text(input.Note)
	if err := s.validator.ValidateConfirmation(input); err != nil {
		s.cfg.Log.Warn("Confirmation validation failed", "request_id", requestID, "error", err)
		return nil, validationError("Confirmation validation failed", err)
	}

	current, err := s.find(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current.Status != model.StatusPending {
		return nil, invalidState(current, "Only pending requests can be confirmed")
	}
	if !input.StartAt.Before(input.EndAt) {
		return nil, apperrors.InvalidRange("Start time must be before end time").WithCause(requesterrors.ErrInvalidRange)
	}

	start, end := input.StartAt.UTC(), input.EndAt.UTC()
	next := *current
	next.Status = model.StatusConfirmed
	next.StartAt = &start
	next.EndAt = &end
	next.ConfirmNote = input.Note
	next.HandledByID = staff.ID
	next.HandledByName = staff.Name
	next.UpdatedAt = s.clock.Now().UTC()

	if err := s.slots.CommitConfirmed(ctx, &next); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateIfStatus(ctx, &next, current.Status); err != nil {
		if relErr := s.slots.Release(ctx, next.AgencyID, start); relErr != nil {
			s.cfg.Log.Error("Failed to release committed slot", "request_id", requestID, "error", relErr)
		}
		// Still pending: the committed slot was its own provisional hold.
		if current.PreferredAt != nil && current.PreferredAt.Equal(start) && !errors.Is(err, requesterrors.ErrStatusChanged) {
			if holdErr := s.slots.HoldProvisionally(ctx, next.AgencyID, start, requestID); holdErr != nil {
				s.cfg.Log.Error("Failed to restore provisional hold", "request_id", requestID, "error", holdErr)
			}
		}
		return nil, s.updateError(current, err)
	}

	if current.PreferredAt != nil && !current.PreferredAt.Equal(start) {
		s.release(ctx, &next, *current.PreferredAt)
	}

	s.cfg.Log.Info("Request confirmed",
		"request_id", requestID,
		"staff_id", staff.ID,
		"agency_id", next.AgencyID,
		"start_at", start,
	)
	s.publishUpdate(ctx, model.RequestConfirmed, &next)
	return &next, nil
}

func (s *requestService) Cancel(ctx context.Context, requestID string, staff *model.Staff, input *model.Cancellation) (*model.Request, error) {
	input.Reason = sanitizer.Line(input.Reason)
	if err := s.validator.ValidateCancellation(input); err != nil {
		return nil, validationError("Cancellation validation failed", err)
	}

	current, err := s.find(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !current.Status.IsOpen() {
		return nil, invalidState(current, "Only pending or confirmed requests can be canceled")
	}

	next := *current
	next.Status = model.StatusCanceled
	next.Open = false
	next.CancelReason = input.Reason
	next.UpdatedAt = s.clock.Now().UTC()
	if staff != nil {
		next.HandledByID = staff.ID
		next.HandledByName = staff.Name
	}

	if err := s.repo.UpdateIfStatus(ctx, &next, current.Status); err != nil {
		return nil, s.updateError(current, err)
	}

	if next.PreferredAt != nil {
		s.release(ctx, &next, *next.PreferredAt)
	}
	if next.StartAt != nil && (next.PreferredAt == nil || !next.StartAt.Equal(*next.PreferredAt)) {
		s.release(ctx, &next, *next.StartAt)
	}

	args := []any{"request_id", requestID, "previous_status", current.Status}
	if staff != nil {
		args = append(args, "staff_id", staff.ID)
	}
	s.cfg.Log.Info("Request canceled", args...)
	s.publishUpdate(ctx, model.RequestCanceled, &next)
	return &next, nil
}

func (s *requestService) Complete(ctx context.Context, requestID string, staff model.Staff, input *model.Completion) (*model.Request, error) {
	input.Notes = sanitizer.Text(input.Notes)
	if err := s.validator.ValidateCompletion(input); err != nil {
		return nil, validationError("Completion validation failed", err)
	}

	current, err := s.find(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current.Status != model.StatusConfirmed {
		return nil, invalidState(current, "Only confirmed requests can be completed")
	}

	now := s.clock.Now().UTC()
	if current.EndAt != nil && current.EndAt.After(now) {
		return nil, apperrors.TooEarly("Request can only be completed after its end time").
			WithDetails(map[string]any{"request_id": requestID, "end_at": current.EndAt}).
			WithCause(requesterrors.ErrTooEarly)
	}

	next := *current
	next.Status = model.StatusCompleted
	next.Open = false
	next.CompletionNotes = input.Notes
	next.HandledByID = staff.ID
	next.HandledByName = staff.Name
	next.UpdatedAt = now

	if err := s.repo.UpdateIfStatus(ctx, &next, current.Status); err != nil {
		return nil, s.updateError(current, err)
	}

	s.cfg.Log.Info("Request completed", "request_id", requestID, "staff_id", staff.ID)
	s.publishUpdate(ctx, model.RequestCompleted, &next)
	return &next, nil
}

func (s *requestService) Get(ctx context.Context, requestID string) (*model.Request, error) {
	if requestID == "" {
		return nil, apperrors.InvalidInput("Request ID cannot be empty")
	}
	return s.find(ctx, requestID)
}

func (s *requestService) List(ctx context.Context, filter repository.Filter) ([]*model.Request, error) {
	if filter.Offset < 0 {
		return nil, apperrors.InvalidInput("Offset cannot be negative")
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		s.cfg.Log.Error("Failed to list requests", "agency_id", filter.AgencyID, "status", filter.Status, "error", err)
		return nil, apperrors.Internal("Failed to list requests", err)
	}
	return requests, nil
}

func (s *requestService) find(ctx context.Context, requestID string) (*model.Request, error) {
	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, requesterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Request", requestID).WithCause(err)
		}
		s.cfg.Log.Error("Failed to read request", "request_id", requestID, "error", err)
		return nil, apperrors.Internal("Failed to read request", err)
	}
	return request, nil
}

func (s *requestService) requireLock(ctx context.Context, requestID string, staff model.Staff) error {
	held, err := s.locks.IsHeldBy(ctx, requestID, staff.ID)
	if err != nil {
		return err
	}
	if !held {
		return apperrors.NotOwner("You must hold the lock on this request").
			WithDetails(map[string]any{"request_id": requestID, "staff_id": staff.ID})
	}
	return nil
}

// release frees a slot after the request left it. Failures are logged only,
// the request transition has already been stored.
func (s *requestService) release(ctx context.Context, request *model.Request, at time.Time) {
	if err := s.slots.Release(ctx, request.AgencyID, at); err != nil {
		s.cfg.Log.Warn("Failed to release slot",
			"request_id", request.ID,
			"agency_id", request.AgencyID,
			"at", at,
			"error", err,
		)
	}
}

func (s *requestService) updateError(current *model.Request, err error) error {
	if errors.Is(err, requesterrors.ErrStatusChanged) {
		return apperrors.InvalidState("Request was modified concurrently").
			WithDetails(map[string]any{"request_id": current.ID, "status": current.Status}).
			WithCause(err)
	}
	s.cfg.Log.Error("Failed to update request", "request_id", current.ID, "error", err)
	return apperrors.Internal("Failed to update request", err)
}

func (s *requestService) publishUpdate(ctx context.Context, eventType string, request *model.Request) {
	s.publisher.Publish(ctx, notify.TopicRequestUpdated, model.RequestEvent{Type: eventType, Request: request})
}

func invalidState(request *model.Request, message string) error {
	return apperrors.InvalidState(message).
		WithDetails(map[string]any{"request_id": request.ID, "status": request.Status}).
		WithCause(requesterrors.ErrInvalidState)
}

func activeRequestConflict(existingID string) error {
	err := apperrors.Conflict("You already have an active request. Wait until it is completed or canceled before submitting a new one").
		WithCause(requesterrors.ErrActiveRequestExists)
	if existingID != "" {
		err = err.WithDetails(map[string]any{"request_id": existingID})
	}
	return err
}

func validationError(message string, err error) error {
	var errs validation.ValidationErrors
	if errors.As(err, &errs) {
		return apperrors.Validation(message, errs.Fields())
	}
	return apperrors.Validation(message, map[string]any{"error": err.Error()})
}
